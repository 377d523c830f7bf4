/**
 * Copyright (c) 2023 wetrycode
 *
 * This software is released under the MIT License.
 * https://opensource.org/licenses/MIT
 */

package api

import (
	"net/http"

	"github.com/wetrycode/argiope"
)

// APIVersion version tag carried by every management response
const APIVersion = "v1"

// Response management api envelope
type Response struct {
	APIVersion string      `json:"api"`
	Code       int         `json:"code"`
	Message    string      `json:"msg"`
	Data       interface{} `json:"data"`
}

// Response 响应函数
func (g *Gin) Response(httpCode, errCode int, data interface{}) {
	g.Ctx.JSON(httpCode, Response{
		APIVersion: APIVersion,
		Code:       errCode,
		Message:    GetMsg(errCode),
		Data:       data,
	})
}

// Write copies a script response onto the gin writer
func (g *Gin) Write(resp *argiope.Response) {
	header := g.Ctx.Writer.Header()
	resp.Headers().Range(func(name, value string) bool {
		header.Add(name, value)
		return true
	})
	body := resp.Body()
	status := resp.Status()
	if status == 0 {
		status = http.StatusOK
	}
	if header.Get("Content-Type") == "" && len(body) > 0 {
		header.Set("Content-Type", http.DetectContentType(body))
	}
	g.Ctx.Status(status)
	if _, err := g.Ctx.Writer.Write(body); err != nil {
		apiLog.Errorf("write response body error %s", err.Error())
	}
}
