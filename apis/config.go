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
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/saba-futai/fwspeed/pkg/speedcgi"
)

// ClientConfig 描述一个 speed.cgi 采集目标
//
// InsecureSkipVerify 是显式的信任边界：设备（防火墙本身）通常只有自签名证书，
// 依靠网络位置而不是证书链来信任它。为 false 时使用 RootCAs（为 nil 则使用系统根证书）
type ClientConfig struct {
	Host string
	Port int
	User string
	Pass string

	// Path defaults to speedcgi.Path.
	Path string

	InsecureSkipVerify bool
	RootCAs            *x509.CertPool

	// Timeout bounds dial, handshake and the full response read of one fetch.
	Timeout time.Duration

	// Now stamps each reading; defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig 返回与设备出厂设置一致的默认配置
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		Host:               "ipfire.home",
		Port:               444,
		User:               "admin",
		Pass:               "password",
		Path:               speedcgi.Path,
		InsecureSkipVerify: true,
		Timeout:            10 * time.Second,
	}
}

func (c *ClientConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", c.Port)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}

// Addr returns host:port.
func (c *ClientConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LoadRootCAs reads a PEM bundle used to verify the appliance certificate.
func LoadRootCAs(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}
