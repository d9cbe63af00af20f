package api

import (
	"bytes"
	"encoding/json"
	"errors"

	"indian-stock-api/internal/brokererr"
)

// InvalidJSON is the error tag of every decode-specific failure
const InvalidJSON = "Invalid JSON in response"

// Decode parses a response body into a JSON object or array.
func Decode(resp *Response) (interface{}, error) {
	var v interface{}
	if err := DecodeInto(resp, &v); err != nil {
		return nil, err
	}

	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return v, nil
	}
	return nil, responseError(resp, string(resp.Body), nil)
}

// DecodeList parses a response body that must be a JSON array of objects.
func DecodeList(resp *Response) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	if err := DecodeInto(resp, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// DecodeInto parses a response body into v after trimming surrounding whitespace.
// Every failure is a ResponseError carrying status, error tag, url and reason.
func DecodeInto(resp *Response, v interface{}) error {
	body := bytes.TrimSpace(resp.Body)
	err := json.Unmarshal(body, v)
	if err == nil {
		return nil
	}

	var syntaxErr *json.SyntaxError
	if len(body) == 0 || errors.As(err, &syntaxErr) {
		return responseError(resp, InvalidJSON, err)
	}
	return responseError(resp, string(resp.Body), err)
}

func responseError(resp *Response, tag string, cause error) error {
	e := brokererr.WithFields(brokererr.KindResponse, map[string]interface{}{
		"status": resp.StatusCode,
		"error":  tag,
		"url":    resp.URL,
		"reason": resp.Reason(),
	})
	e.Err = cause
	return e
}
