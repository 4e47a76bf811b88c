// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

func apiBaseURL() string {
	if u := os.Getenv("BATCHOP_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

// 提交会阻塞到重试结束（默认最长约 14s 退避），超时需大于此
func newClient() *resty.Client {
	return resty.New().
		SetBaseURL(apiBaseURL()).
		SetTimeout(60 * time.Second).
		SetHeader("Content-Type", "application/json")
}

// apiError 服务端错误响应
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

func check(resp *resty.Response, err error, want ...int) error {
	if err != nil {
		return err
	}
	for _, code := range want {
		if resp.StatusCode() == code {
			return nil
		}
	}
	return &apiError{Status: resp.StatusCode(), Body: resp.String()}
}

func getHealth() (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().SetResult(&out).Get("/api/health")
	if err := check(resp, err, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

type submitBody struct {
	Type           string            `json:"type"`
	TargetRefs     []string          `json:"target_refs"`
	CorrelationIDs map[string]string `json:"correlation_ids,omitempty"`
}

func submitOperation(body submitBody) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().SetBody(body).SetResult(&out).Post("/api/operations")
	if err := check(resp, err, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

func listOperations(status, corrKey, corrValue string, limit int) ([]map[string]interface{}, error) {
	var out struct {
		Operations []map[string]interface{} `json:"operations"`
	}
	req := newClient().R().SetResult(&out)
	if status != "" {
		req.SetQueryParam("status", status)
	}
	if corrKey != "" {
		req.SetQueryParam("correlation_key", corrKey)
	}
	if corrValue != "" {
		req.SetQueryParam("correlation_value", corrValue)
	}
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	resp, err := req.Get("/api/operations")
	if err := check(resp, err, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Operations, nil
}

func getOperation(id string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().SetResult(&out).SetPathParam("id", id).Get("/api/operations/{id}")
	if err := check(resp, err, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

func resetOperation(id string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().SetResult(&out).SetPathParam("id", id).Post("/api/operations/{id}/reset")
	if err := check(resp, err, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

func purgeOperations(key, value string) (int, error) {
	var out struct {
		Deleted int `json:"deleted"`
	}
	resp, err := newClient().R().
		SetResult(&out).
		SetQueryParams(map[string]string{"correlation_key": key, "correlation_value": value}).
		Delete("/api/operations")
	if err := check(resp, err, http.StatusOK); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

func triggerRecovery() (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().SetResult(&out).Post("/api/recovery")
	if err := check(resp, err, http.StatusOK, http.StatusAccepted); err != nil {
		return nil, err
	}
	return out, nil
}

func prettyJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
