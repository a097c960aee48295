package util

import "time"

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

// 存储写入失败时的单次重试退避
const PersistRetryBackoff = 100 * time.Millisecond

// RetryOnce 执行 fn，失败后退避一次重试，仍失败返回最后一次错误
func RetryOnce(backoff time.Duration, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	time.Sleep(backoff)
	return fn()
}
