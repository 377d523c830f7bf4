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

package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/wetrycode/argiope"
	"github.com/wetrycode/argiope/command"
	"github.com/wetrycode/argiope/metric"
	"github.com/wetrycode/argiope/service"
)

var logger = argiope.GetLogger("cmd")

var configDir string

var RootCmd = &cobra.Command{
	Use:          "argiope",
	Short:        "argiope runs scripts as request handlers",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve http and grpc traffic through the scripts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

var requestFlags = &command.RequestFlags{}

var requestCmd = &cobra.Command{
	Use:   "request URL",
	Short: "Dispatch one request to the scripts and print the body",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := argiope.LoadSettings(afero.NewOsFs(), configDir)
		if err != nil {
			return err
		}
		r, _, err := NewRuntimeFromSettings(c)
		if err != nil {
			return err
		}
		defer r.Close()
		_, err = command.DoRequest(r, cmd.OutOrStdout(), args[0], requestFlags)
		return err
	},
}

// NewRuntimeFromSettings starts a runtime with the sinks and hooks the
// settings ask for. The returned redis client is nil without a redis
// section and is closed by the caller.
func NewRuntimeFromSettings(c *argiope.Configuration) (*argiope.Runtime, *redis.Client, error) {
	if level := c.GetString("log.level"); level != "" {
		if err := argiope.SetLogLevel(level); err != nil {
			return nil, nil, err
		}
	}
	opts, err := argiope.RuntimeOptionsFromSettings(c)
	if err != nil {
		return nil, nil, err
	}
	var rdb *redis.Client
	redisConfig, ok, err := argiope.RedisConfigFromSettings(c)
	if err != nil {
		return nil, nil, err
	}
	var collectorOpts []metric.CollectorOption
	if ok {
		rdb, err = argiope.NewRdbClient(redisConfig)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, argiope.RuntimeWithLogSink(argiope.NewRedisLogSink(rdb, c.GetString("redis.key"),
			argiope.RedisLogSinkWithMaxLen(c.GetInt64("redis.max_len")))))
		collectorOpts = append(collectorOpts, metric.CollectorWithLocker(redislock.New(rdb), c.GetString("redis.key")+":metric"))
	}
	if collector, ok := metric.CollectorFromSettings(c, collectorOpts...); ok {
		opts = append(opts, argiope.RuntimeWithHooks(collector))
	}
	r, err := argiope.NewRuntime(opts...)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, nil, err
	}
	return r, rdb, nil
}

func serve(ctx context.Context) error {
	c, err := argiope.LoadSettings(afero.NewOsFs(), configDir)
	if err != nil {
		return err
	}
	lock := argiope.NewFileLock(configDir)
	if err := lock.TryLock(); err != nil {
		return fmt.Errorf("another server is running: %w", err)
	}
	defer lock.Unlock()
	r, rdb, err := NewRuntimeFromSettings(c)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			logger.Errorf("close runtime error %s", err.Error())
		}
		if rdb != nil {
			_ = rdb.Close()
		}
	}()
	host, portStr, err := net.SplitHostPort(c.GetString("server.addr"))
	if err != nil {
		return fmt.Errorf("invalid server.addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid server.addr port: %w", err)
	}
	logger.Infof("serving %s with %d workers", r.Docroot(), r.Workers())
	return service.NewServer(r, host, port).Start(ctx)
}

func Execute() {
	err := RootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", ".", "directory holding settings.yaml")
	command.AddRequestFlags(requestCmd, requestFlags)
	RootCmd.AddCommand(serveCmd, requestCmd)
}
