package store

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rushteam/homeprice/core"
)

// HTTPStore 通过 HTTP GET 读取产物的只读 Store，key 拼接在 BaseURL 之后。
//
// 用法：
//
//	s := store.NewHTTPStore("http://models.internal/housing", 5*time.Second)
//	data, err := s.Get(ctx, "v3/feature_schema.json")
type HTTPStore struct {
	BaseURL string
	client  *http.Client
}

// NewHTTPStore 创建 HTTP 只读存储
func NewHTTPStore(baseURL string, timeout time.Duration) *HTTPStore {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewHTTPStoreWithClient 使用自定义 HTTP 客户端创建存储
func NewHTTPStoreWithClient(baseURL string, client *http.Client) *HTTPStore {
	return &HTTPStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (s *HTTPStore) Name() string { return "http" }

func (s *HTTPStore) Get(ctx context.Context, key string) ([]byte, error) {
	url := s.BaseURL + "/" + strings.TrimLeft(key, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP 请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", core.ErrStoreNotFound, url)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("HTTP 请求失败: status=%d, body=%s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	return data, nil
}

func (s *HTTPStore) Set(ctx context.Context, key string, value []byte) error {
	return core.ErrStoreNotSupported
}

func (s *HTTPStore) List(ctx context.Context, prefix string) ([]string, error) {
	return nil, core.ErrStoreNotSupported
}

func (s *HTTPStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

var _ core.Store = (*HTTPStore)(nil)
