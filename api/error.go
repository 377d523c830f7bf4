/**
 * Copyright (c) 2023 wetrycode
 *
 * This software is released under the MIT License.
 * https://opensource.org/licenses/MIT
 */

package api

const (
	SUCCESS        = 200
	ERROR          = 500
	INVALID_PARAMS = 400
	NOT_FOUND      = 404

	APP_HEALTH_OK   = 1000
	RUNTIME_CLOSED  = 1001
	QUEUE_FULL      = 1002
	REQUEST_TIMEOUT = 1003

	REQUEST_TOO_LARGE = 1004
)

var MsgFlags = map[int]string{
	SUCCESS:         "ok",
	ERROR:           "fail",
	INVALID_PARAMS:  "bad request",
	NOT_FOUND:       "resource not found",
	APP_HEALTH_OK:   "healthy",
	RUNTIME_CLOSED:  "runtime closed",
	QUEUE_FULL:      "request queue full",
	REQUEST_TIMEOUT: "request timeout",

	REQUEST_TOO_LARGE: "request body too large",
}

// GetMsg get error information based on Code
func GetMsg(code int) string {
	msg, ok := MsgFlags[code]
	if ok {
		return msg
	}

	return MsgFlags[ERROR]
}
