package fakeserver

import (
	"encoding/json"
	"net/http"
)

type jsonError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type jsonErrors struct {
	Error []jsonError `json:"errors"`
}

func writeError(w http.ResponseWriter, errs jsonErrors, httpCode int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(httpCode)
	json.NewEncoder(w).Encode(&errs) // nolint
}

func buildErrors(err error, code string) jsonErrors {
	return jsonErrors{Error: []jsonError{{Description: err.Error(), Code: code}}}
}

type ocsMeta struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statuscode"`
	Message    string `json:"message"`
}

type ocsPayload struct {
	OCS struct {
		Meta ocsMeta     `json:"meta"`
		Data interface{} `json:"data"`
	} `json:"ocs"`
}

// writeOCS writes a v2 OCS envelope, whose meta status code mirrors the HTTP status.
func writeOCS(w http.ResponseWriter, httpCode int, message string, data interface{}) {
	var p ocsPayload
	p.OCS.Meta = ocsMeta{Status: "ok", StatusCode: httpCode, Message: message}
	if httpCode >= http.StatusBadRequest {
		p.OCS.Meta.Status = "failure"
	}
	if data == nil {
		data = []interface{}{}
	}
	p.OCS.Data = data

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(httpCode)
	json.NewEncoder(w).Encode(&p) // nolint
}

func ocsOK(w http.ResponseWriter, data interface{}) {
	writeOCS(w, http.StatusOK, "OK", data)
}

func ocsFail(w http.ResponseWriter, httpCode int, message string) {
	writeOCS(w, httpCode, message, nil)
}

func writeJSON(w http.ResponseWriter, httpCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(httpCode)
	json.NewEncoder(w).Encode(v) // nolint
}
