package feast

import (
	"strconv"
	"strings"
)

// NewClient 根据端点创建 gRPC 客户端。
//
// endpoint 形如 "localhost:6565" 或 "grpc://feast-serving:6565"。
//
//	client, err := feast.NewClient("feast-serving:6565", "housing")
func NewClient(endpoint, project string, opts ...ClientOption) (Client, error) {
	host, port := parseEndpoint(endpoint)
	return NewGrpcClient(host, port, project, opts...)
}

// parseEndpoint 解析端点地址，返回 host 和 port；没有端口时 port 为 0
func parseEndpoint(endpoint string) (string, int) {
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "grpc://")

	if i := strings.LastIndex(endpoint, ":"); i > 0 {
		if port, err := strconv.Atoi(endpoint[i+1:]); err == nil {
			return endpoint[:i], port
		}
	}
	return endpoint, 0
}
