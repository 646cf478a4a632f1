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
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/saba-futai/fwspeed/pkg/rawhttp"
	"github.com/saba-futai/fwspeed/pkg/speedcgi"
)

// authRequiredMarker is the status text the appliance's web server sends for
// rejected credentials.
const authRequiredMarker = "401 Authorization Required"

// Reading 是一次成功抓取的结果：累计计数 + 观测时间
type Reading struct {
	speedcgi.Counters
	At time.Time
}

// Client 每次调用都新建一条 TLS 连接，发送一个带 Basic 认证的请求，读完后关闭
type Client struct {
	cfg    ClientConfig
	addr   string
	tlsCfg *tls.Config
	dialer net.Dialer
	now    func() time.Time
}

func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Client{
		cfg:    *cfg,
		addr:   cfg.Addr(),
		tlsCfg: buildTLSConfig(cfg),
		now:    cfg.Now,
	}
	if c.cfg.Path == "" {
		c.cfg.Path = speedcgi.Path
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

func buildTLSConfig(cfg *ClientConfig) *tls.Config {
	return &tls.Config{
		ServerName: cfg.Host,
		// Opt-in through the insecure_skip_verify setting.
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec
		RootCAs:            cfg.RootCAs,
		MinVersion:         tls.VersionTLS12,
	}
}

// FetchCounters 抓取一次设备的累计收发计数
//
// 参数:
//   - ctx: 取消时会立即关闭连接，打断阻塞中的连接/读取
//
// 返回值:
//   - Reading: 解析出的 rxb/txb 以及观测时间
//   - error: *AuthError（凭据错误，不可重试）或 *TransientError（其它所有失败）
//
// 流程:
//  1. 建立 TCP 连接（不复用）
//  2. TLS 握手
//  3. 写入 GET 请求
//  4. 读取完整响应，按第一个空行拆分头部与 body
//  5. 检查 401，解析 XML
func (c *Client) FetchCounters(ctx context.Context) (Reading, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	// 1. 建立 TCP 连接
	rawConn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return Reading{}, c.transient(ctx, StageDial, err)
	}
	// 任何路径退出都要关闭底层连接
	defer rawConn.Close()

	// 超时或取消时关闭连接，打断阻塞中的握手/读写
	stop := context.AfterFunc(ctx, func() {
		_ = rawConn.Close()
	})
	defer stop()

	// 2. TLS 握手
	tlsConn := tls.Client(rawConn, c.tlsCfg)
	defer tlsConn.Close()
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return Reading{}, c.transient(ctx, StageHandshake, err)
	}

	// 3. 请求
	if err := rawhttp.WriteRequest(tlsConn, c.cfg.Host, c.cfg.Path, c.cfg.User, c.cfg.Pass); err != nil {
		return Reading{}, c.transient(ctx, StageWrite, err)
	}

	// 4. 响应
	// 头部已表明 401 时，无论 body 是否读完都按凭据错误处理
	resp, err := rawhttp.ReadResponse(tlsConn)
	if resp != nil && rejected(resp) {
		authErr := &AuthError{Addr: c.addr}
		if len(resp.Header) > 0 {
			authErr.StatusLine = resp.Header[0]
		}
		return Reading{}, authErr
	}
	if err != nil {
		return Reading{}, c.transient(ctx, StageRead, err)
	}

	// 5. 解析
	counters, err := speedcgi.ParseCounters(resp.Body)
	if err != nil {
		return Reading{}, c.transient(ctx, StageParse, err)
	}

	return Reading{Counters: counters, At: c.now()}, nil
}

func rejected(resp *rawhttp.Response) bool {
	return resp.HeaderContains(authRequiredMarker) || resp.StatusCode() == 401
}

// transient wraps err, preferring the context error when the fetch was cut
// short so callers can tell cancellation from a network failure.
func (c *Client) transient(ctx context.Context, stage Stage, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %v", ctxErr, err)
	}
	return &TransientError{Addr: c.addr, Stage: stage, Err: err}
}
