// pkg/rawhttp/request.go
package rawhttp

import (
	"bufio"
	"encoding/base64"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
)

// MaxResponseSize bounds how much of a response ReadResponse will consume.
const MaxResponseSize = 1 << 20

var ErrResponseTooLarge = errors.New("response exceeds size limit")

var headerBufPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, 512)
		return &b
	},
}

// WriteRequest 写入一个最小化的 HTTP/1.0 GET 请求（带 Basic 认证），一次性写出
func WriteRequest(w io.Writer, host, path, user, pass string) error {
	bufPtr := headerBufPool.Get().(*[]byte)
	buf := *bufPtr
	buf = buf[:0]
	defer func() {
		if cap(buf) <= 4096 {
			*bufPtr = buf
			headerBufPool.Put(bufPtr)
		}
	}()

	buf = append(buf, "GET "...)
	buf = append(buf, path...)
	buf = append(buf, " HTTP/1.0\r\nHost: "...)
	buf = append(buf, host...)
	buf = append(buf, "\r\nAuthorization: Basic "...)
	buf = append(buf, base64.StdEncoding.EncodeToString([]byte(user+":"+pass))...)
	buf = append(buf, "\r\n\r\n"...)

	_, err := w.Write(buf)
	return err
}

// Response is a response split at the first blank line. Header keeps the raw
// header lines; Body is every following line concatenated without separators.
type Response struct {
	Header []string
	Body   string
}

// StatusCode parses the code from the status line, or returns 0.
func (r *Response) StatusCode() int {
	if len(r.Header) == 0 {
		return 0
	}
	fields := strings.Fields(r.Header[0])
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return 0
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0
	}
	return code
}

// HeaderContains reports whether any header line contains substr.
func (r *Response) HeaderContains(substr string) bool {
	for _, line := range r.Header {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

// ReadResponse 逐行读取整个响应直到 EOF
// 第一个空行之前是头部，之后的所有行直接拼接为 body
// 读取失败时仍返回已读到的头部，调用方可据此判断状态
func ReadResponse(r io.Reader) (*Response, error) {
	lr := &io.LimitedReader{R: r, N: MaxResponseSize + 1}
	br := bufio.NewReader(lr)

	resp := &Response{}
	var body strings.Builder
	inBody := false

	for {
		line, err := br.ReadString('\n')
		if lr.N <= 0 {
			return resp, ErrResponseTooLarge
		}
		if len(line) > 0 || err == nil {
			line = strings.TrimRight(line, "\r\n")
			switch {
			case inBody:
				body.WriteString(line)
			case line == "":
				inBody = true
			default:
				resp.Header = append(resp.Header, line)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return resp, err
		}
	}

	resp.Body = body.String()
	return resp, nil
}
