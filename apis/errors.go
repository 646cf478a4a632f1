/*
Copyright (C) 2025 by ふたい <contact me via issue>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.

In addition, no derivative work may use the name or imply association
with this application without prior consent.
*/
package apis

import (
	"errors"
	"fmt"
)

// ErrUnauthorized 表示设备拒绝了配置的用户名/密码
// 这是不可重试的错误：继续轮询也不会成功
var ErrUnauthorized = errors.New("authorization failed, check user/pass in the settings file")

// Stage 标识一次抓取中失败的阶段
type Stage string

const (
	StageDial      Stage = "dial"
	StageHandshake Stage = "handshake"
	StageWrite     Stage = "write"
	StageRead      Stage = "read"
	StageParse     Stage = "parse"
)

// AuthError 在响应头包含 401 时返回
//
// 字段说明：
//   - Addr: 目标设备地址 (host:port)
//   - StatusLine: 响应状态行，便于日志排查
type AuthError struct {
	Addr       string
	StatusLine string
}

func (e *AuthError) Error() string {
	if e.StatusLine == "" {
		return fmt.Sprintf("speed.cgi %s: %v", e.Addr, ErrUnauthorized)
	}
	return fmt.Sprintf("speed.cgi %s: %v (%s)", e.Addr, ErrUnauthorized, e.StatusLine)
}

func (e *AuthError) Unwrap() error {
	return ErrUnauthorized
}

// TransientError 包装所有可恢复的错误（连接失败、超时、证书/握手失败、响应或 XML 格式错误）
// 调用者应跳过本次采样并在下一个周期继续轮询
type TransientError struct {
	Addr  string
	Stage Stage
	Err   error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("speed.cgi %s: %s failed: %v", e.Addr, e.Stage, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsAuth reports whether err carries an *AuthError.
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsTransient reports whether err carries a *TransientError.
func IsTransient(err error) bool {
	var tErr *TransientError
	return errors.As(err, &tErr)
}
