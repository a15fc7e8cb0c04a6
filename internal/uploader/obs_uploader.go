// internal/uploader/obs_uploader.go
package uploader

import (
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/huaweicloud/huaweicloud-sdk-go-obs/obs"
)

// ObsUploader 结构体封装了 OBS 客户端和配置。
// 新入库的文件会以 <prefix>/<内容指纹>.<扩展名> 为对象键再上传一份。
type ObsUploader struct {
	client *obs.ObsClient
	bucket string
	prefix string
	logger *slog.Logger
}

// NewObsUploader 创建一个新的 OBS 上传器实例
func NewObsUploader(endpoint, ak, sk, bucket, prefix string, logger *slog.Logger) (*ObsUploader, error) {
	if endpoint == "" || ak == "" || sk == "" || bucket == "" {
		return nil, errors.New("OBS 配置不完整，需要 endpoint, ak, sk, bucket")
	}
	client, err := obs.New(ak, sk, endpoint)
	if err != nil {
		return nil, fmt.Errorf("无法创建 OBS 客户端: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ObsUploader{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With(slog.String("component", "obs")),
	}, nil
}

// ObjectKey 返回文件在桶中的对象键
func (u *ObsUploader) ObjectKey(name string) string {
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

// UploadFile 将指定路径的本地文件上传到 OBS，实现 fetcher.Mirror
func (u *ObsUploader) UploadFile(objectKey, filePath string) error {
	input := &obs.PutFileInput{}
	input.Bucket = u.bucket
	input.Key = u.ObjectKey(objectKey)
	input.SourceFile = filePath

	output, err := u.client.PutFile(input)
	if err != nil {
		// 尝试解析 OBS 返回的详细错误信息
		var obsError obs.ObsError
		if errors.As(err, &obsError) {
			return fmt.Errorf("上传失败，OBS错误码: %s, 错误信息: %s", obsError.Code, obsError.Message)
		}
		return fmt.Errorf("上传文件到 OBS 失败: %w", err)
	}

	u.logger.Info("mirrored to obs",
		slog.String("path", filePath),
		slog.String("bucket", u.bucket),
		slog.String("key", input.Key),
		slog.String("etag", output.ETag),
	)
	return nil
}

// Close 关闭客户端连接
func (u *ObsUploader) Close() {
	if u.client != nil {
		u.client.Close()
	}
}
