/**
 * Copyright (c) 2023 wetrycode
 *
 * This software is released under the MIT License.
 * https://opensource.org/licenses/MIT
 */

package api

import (
	"time"

	"github.com/gin-gonic/gin"
)

type Gin struct {
	Ctx *gin.Context
}

// SetUp gin engine with panic recovery and access logging
func SetUp() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), accessLog())
	return engine
}

func accessLog() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		apiLog.WithField("status", ctx.Writer.Status()).
			WithField("elapsed", time.Since(start).String()).
			Debugf("%s %s", ctx.Request.Method, ctx.Request.URL.RequestURI())
	}
}
