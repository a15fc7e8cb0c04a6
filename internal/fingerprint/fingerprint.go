// Package fingerprint computes stable hex digests over byte streams.
// Both dedup keys of the catalog (source URL and downloaded content) come from here.
package fingerprint

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm 指定摘要算法
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// DefaultChunkSize 是流式读取时每次读取的字节数
const DefaultChunkSize = 8096

// Computer 以固定大小的块读取数据并累加到摘要中，不会把整个文件读入内存。
type Computer struct {
	alg       Algorithm
	newHash   func() hash.Hash
	chunkSize int
}

// New 根据算法名创建 Computer。空字符串等同于 md5。
func New(alg Algorithm) (*Computer, error) {
	var newHash func() hash.Hash
	switch Algorithm(strings.ToLower(string(alg))) {
	case "", MD5:
		alg, newHash = MD5, md5.New
	case SHA256:
		alg, newHash = SHA256, sha256.New
	case BLAKE3:
		alg, newHash = BLAKE3, func() hash.Hash { return blake3.New() }
	default:
		return nil, fmt.Errorf("unknown fingerprint algorithm %q", alg)
	}
	return &Computer{alg: alg, newHash: newHash, chunkSize: DefaultChunkSize}, nil
}

// WithChunkSize 返回一个使用不同读取块大小的副本。n <= 0 时保持不变。
func (c *Computer) WithChunkSize(n int) *Computer {
	cp := *c
	if n > 0 {
		cp.chunkSize = n
	}
	return &cp
}

// Algorithm 返回当前使用的摘要算法
func (c *Computer) Algorithm() Algorithm {
	return c.alg
}

// HexLen 返回十六进制摘要的字符数
func (c *Computer) HexLen() int {
	return c.newHash().Size() * 2
}

// Reader 读取 r 直到 EOF，返回小写十六进制摘要。读取错误原样向上传递。
func (c *Computer) Reader(r io.Reader) (string, error) {
	h := c.newHash()
	buf := make([]byte, c.chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Bytes 计算一段内存数据的摘要，用于任务 URL 这种短输入。
func (c *Computer) Bytes(b []byte) string {
	sum, _ := c.Reader(bytes.NewReader(b))
	return sum
}

// File 打开本地文件并计算其内容摘要
func (c *Computer) File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sum, err := c.Reader(f)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return sum, nil
}
