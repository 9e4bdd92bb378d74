package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// imageExtensions 是允許上傳的圖片類型及其副檔名，不包含可以夾帶腳本的 SVG
var imageExtensions = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/bmp":  "bmp",
	"image/webp": "webp",
}

var (
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrForeignObject    = errors.New("url does not belong to this bucket")
)

// ObjectAPI 是 Operator 用到的 S3 操作，*s3.Client 即實作了這個介面
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// NewClient 以靜態金鑰建立 S3 相容儲存的客戶端
func NewClient(ctx context.Context, endpoint, accessKeyID, secretAccessKey string) (*s3.Client, error) {
	const op = "NewClient"
	cfg, err := awsCfg.LoadDefaultConfig(
		ctx,
		awsCfg.WithBaseEndpoint(endpoint),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
		awsCfg.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load AWS config, err=%w", op, err)
	}
	return s3.NewFromConfig(cfg), nil
}

type Option func(*Operator)

// WithMaxImageSize 設置單張圖片的大小上限，預設為 5MB
func WithMaxImageSize(size int64) Option {
	return func(o *Operator) {
		o.maxImageSize = size
	}
}

// Operator 負責拍賣圖片在 S3 上的存取
type Operator struct {
	client ObjectAPI
	// bucket 是 S3 存儲桶的名稱。
	bucket string
	// publicEndpoint 是 S3 存儲桶的公開 Endpoint。
	publicEndpoint *url.URL
	maxImageSize   int64
}

func NewOperator(client ObjectAPI, bucket, publicBaseURL string, opts ...Option) (*Operator, error) {
	const op = "NewOperator"
	if client == nil {
		return nil, fmt.Errorf("[%s] S3 client cannot be nil", op)
	}
	publicEndpoint, err := url.Parse(publicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse public base URL, err=%w", op, err)
	}
	o := &Operator{
		client:         client,
		bucket:         bucket,
		publicEndpoint: publicEndpoint,
		maxImageSize:   5 << 20,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func (o *Operator) MaxImageSize() int64 {
	return o.maxImageSize
}

// UploadImage 讀取並檢查圖片後存到 prefix 目錄下，返回公開的 URL
// 限制圖片
//  1. 不超過 maxImageSize
//  2. MIME類型為不包含腳本的圖片檔案
func (o *Operator) UploadImage(ctx context.Context, prefix string, body io.Reader) (string, error) {
	const op = "UploadImage"
	file, err := io.ReadAll(NewMaxSizeReader(body, o.maxImageSize))
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to read image, err=%w", op, err)
	}

	mimeType := http.DetectContentType(file)
	ext, ok := imageExtensions[mimeType]
	if !ok {
		return "", fmt.Errorf("[%s] %w: %s", op, ErrUnsupportedImage, mimeType)
	}

	key := path.Join(prefix, uuid.New().String()+"."+ext)
	_, err = o.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(o.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to upload file to S3, err=%w", op, err)
	}
	return o.publicEndpoint.JoinPath(key).String(), nil
}

// DeleteImage 刪除 UploadImage 產生的 URL 所對應的物件
func (o *Operator) DeleteImage(ctx context.Context, rawURL string) error {
	const op = "DeleteImage"
	key, err := o.objectKey(rawURL)
	if err != nil {
		return fmt.Errorf("[%s] %w", op, err)
	}
	_, err = o.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("[%s] Fail to delete file from S3, err=%w", op, err)
	}
	return nil
}

func (o *Operator) objectKey(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrForeignObject, rawURL)
	}
	base := strings.TrimSuffix(o.publicEndpoint.Path, "/") + "/"
	if u.Host != o.publicEndpoint.Host || !strings.HasPrefix(u.Path, base) || len(u.Path) == len(base) {
		return "", fmt.Errorf("%w: %s", ErrForeignObject, rawURL)
	}
	return strings.TrimPrefix(u.Path, base), nil
}
