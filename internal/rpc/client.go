package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"termhost/internal/config"
	"termhost/internal/logger"
)

// HTTPConfig 客户端配置
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
}

/**
 * Build default client configuration
 * @returns {*HTTPConfig} Returns configuration pointing at the local server
 * @description
 * - Derives the base URL from the configured server listen address
 * - A bare ":port" address is resolved against localhost
 */
func DefaultHTTPConfig() *HTTPConfig {
	address := config.Config.Server.Address
	if strings.HasPrefix(address, ":") {
		address = "localhost" + address
	}
	return &HTTPConfig{
		BaseURL: "http://" + address,
		Timeout: 10 * time.Second,
	}
}

// Response 服务端应答
type Response struct {
	StatusCode int
	Body       []byte
	Error      string
}

// HTTPClient 访问本机termhost服务的HTTP客户端
type HTTPClient struct {
	config *HTTPConfig
	client *http.Client
}

// NewHTTPClient 创建HTTP客户端实例，config为nil时使用默认配置
func NewHTTPClient(cfg *HTTPConfig) *HTTPClient {
	if cfg == nil {
		cfg = DefaultHTTPConfig()
	}
	return &HTTPClient{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

/**
 * Send GET request to the local server
 * @param {string} path - API endpoint path
 * @param {map[string]string} params - Query parameters
 * @returns {(*Response, error)} Returns response, or error when the server is unreachable
 */
func (c *HTTPClient) Get(path string, params map[string]string) (*Response, error) {
	target := c.config.BaseURL + path
	if len(params) > 0 {
		values := url.Values{}
		for key, value := range params {
			values.Set(key, value)
		}
		target += "?" + values.Encode()
	}
	logger.Debugf("Sending GET request to %s", target)

	resp, err := c.client.Get(target)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return readResponse(resp)
}

/**
 * Send POST request to the local server
 * @param {string} path - API endpoint path
 * @param {interface{}} data - Request body, JSON-encoded when non-nil
 * @returns {(*Response, error)} Returns response, or error when the server is unreachable
 */
func (c *HTTPClient) Post(path string, data interface{}) (*Response, error) {
	target := c.config.BaseURL + path

	var body io.Reader
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize data: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	logger.Debugf("Sending POST request to %s", target)

	resp, err := c.client.Post(target, "application/json", body)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return readResponse(resp)
}

// GetJSON 发送GET请求并把成功应答解码到out
func (c *HTTPClient) GetJSON(path string, params map[string]string, out interface{}) error {
	resp, err := c.Get(path, params)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("server returned error(%d): %s", resp.StatusCode, resp.Error)
	}
	return json.Unmarshal(resp.Body, out)
}

// readResponse 读出应答体，状态码>=400时提取错误描述
func readResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	result := &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			result.Error = apiErr.Error
		} else {
			result.Error = strings.TrimSpace(string(body))
		}
	}
	return result, nil
}
