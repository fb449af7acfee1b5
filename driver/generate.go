//go:generate mockgen -destination=mock_registerreader.go -package=driver github.com/byuccl/qemu/driver RegisterReader

package driver
