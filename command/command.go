// MIT License

// Copyright (c) 2023 wetrycode

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:

// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.

// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package command

import (
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/wetrycode/argiope"
)

var logger = argiope.GetLogger("command")

// RequestFlags describe one request issued from the command line
type RequestFlags struct {
	Method  string
	Body    string
	Headers []string
	Verbose bool
}

// BuildRequest parses "Name: value" header flags and builds the request
func (f *RequestFlags) BuildRequest(url string) (*argiope.Request, error) {
	headers := argiope.NewHeaders()
	for _, line := range f.Headers {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q", line)
		}
		headers.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	opts := []argiope.RequestOption{
		argiope.RequestWithMethod(f.Method),
		argiope.RequestWithURL(url),
		argiope.RequestWithHeaders(headers),
	}
	if f.Body != "" {
		opts = append(opts, argiope.RequestWithBody([]byte(f.Body)))
	}
	return argiope.NewRequest(opts...)
}

// DoRequest runs one request synchronously and writes the body to out.
// With verbose the status line and headers come first.
func DoRequest(r *argiope.Runtime, out io.Writer, url string, flags *RequestFlags) (*argiope.Response, error) {
	req, err := flags.BuildRequest(url)
	if err != nil {
		return nil, err
	}
	logger.Debugf("request %s", req.String())
	resp, err := r.HandleRequestSync(req)
	if err != nil {
		return nil, err
	}
	if flags.Verbose {
		fmt.Fprintf(out, "%d\n%s\n", resp.Status(), resp.Headers().String())
	}
	if _, err := out.Write(resp.Body()); err != nil {
		return nil, err
	}
	if exception, ok := resp.Exception(); ok {
		return resp, fmt.Errorf("script exception: %s", exception)
	}
	return resp, nil
}

// AddRequestFlags binds the request flags onto cmd
func AddRequestFlags(cmd *cobra.Command, flags *RequestFlags) {
	cmd.Flags().StringVarP(&flags.Method, "method", "X", "GET", "request method")
	cmd.Flags().StringVarP(&flags.Body, "data", "d", "", "request body")
	cmd.Flags().StringArrayVarP(&flags.Headers, "header", "H", nil, "request header, Name: value")
	cmd.Flags().BoolVarP(&flags.Verbose, "verbose", "v", false, "print status and headers")
}

// NewRootCmd commands bound to an already started runtime
func NewRootCmd(r *argiope.Runtime) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "argiope",
		Short:        "argiope runs scripts as request handlers",
		SilenceUsage: true,
	}
	flags := &RequestFlags{}
	requestCmd := &cobra.Command{
		Use:   "request URL",
		Short: "Dispatch one request to the scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := DoRequest(r, cmd.OutOrStdout(), args[0], flags)
			return err
		},
	}
	AddRequestFlags(requestCmd, flags)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the runtime counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := jsoniter.MarshalIndent(map[string]interface{}{
				"status":  r.GetRuntimeStatus().GetStatusOn().GetTypeName(),
				"workers": r.Workers(),
				"metrics": r.GetStats().GetAllStats(),
			}, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return err
		},
	}
	rootCmd.AddCommand(requestCmd, statusCmd)
	return rootCmd
}

func ExecuteCmd(r *argiope.Runtime) {
	err := NewRootCmd(r).Execute()
	if err != nil {
		panic(err.Error())
	}
}
