package xtransport

import (
	"context"
	"net/http"
)

// AuthStrategy HTTP 认证策略，原地修改出站请求（头或 URL）。
type AuthStrategy interface {
	Apply(ctx context.Context, req *http.Request) error
}

// bearerAuth Authorization: Bearer <token>
type bearerAuth struct {
	token string
}

// NewBearerAuth 创建 Bearer token 认证策略。
func NewBearerAuth(token string) AuthStrategy {
	return &bearerAuth{token: token}
}

func (a *bearerAuth) Apply(_ context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+a.token)
	return nil
}

// basicAuth HTTP Basic 认证
type basicAuth struct {
	username string
	password string
}

// NewBasicAuth 创建 Basic 认证策略。
func NewBasicAuth(username, password string) AuthStrategy {
	return &basicAuth{username: username, password: password}
}

func (a *basicAuth) Apply(_ context.Context, req *http.Request) error {
	req.SetBasicAuth(a.username, a.password)
	return nil
}

// headerAuth 自定义请求头认证（如 X-Api-Key）
type headerAuth struct {
	name  string
	value string
}

// NewHeaderAuth 创建自定义请求头认证策略。
func NewHeaderAuth(name, value string) AuthStrategy {
	return &headerAuth{name: name, value: value}
}

func (a *headerAuth) Apply(_ context.Context, req *http.Request) error {
	req.Header.Set(a.name, a.value)
	return nil
}

// queryAuth URL 查询参数认证
type queryAuth struct {
	param string
	value string
}

// NewQueryAuth 创建查询参数认证策略。
func NewQueryAuth(param, value string) AuthStrategy {
	return &queryAuth{param: param, value: value}
}

func (a *queryAuth) Apply(_ context.Context, req *http.Request) error {
	q := req.URL.Query()
	q.Set(a.param, a.value)
	req.URL.RawQuery = q.Encode()
	return nil
}
