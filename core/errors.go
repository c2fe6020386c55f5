package core

import "errors"

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 可包装底层错误（Err），支持 errors.Is / errors.As
//
// 使用场景：
//   - 写入校验：INVALID_INTERACTION
//   - 请求校验：INVALID_REQUEST
//   - 依赖故障：CATALOG_UNAVAILABLE, STORE_UNAVAILABLE
//   - 无结果：NO_CANDIDATES
type DomainError struct {
	Code    string // 错误代码（如 "INVALID_REQUEST"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "catalog"）
	Err     error  // 底层错误（可选）
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is 按 Code 比较，使 errors.Is(err, ErrStoreUnavailable) 对包装后的错误同样成立。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap 基于当前错误的 Code/Module 生成一个包装了 cause 的新错误。
func (e *DomainError) Wrap(cause error) *DomainError {
	return &DomainError{Code: e.Code, Module: e.Module, Message: e.Message, Err: cause}
}

// With 基于当前错误生成一个带补充消息的新错误。
func (e *DomainError) With(detail string) *DomainError {
	return &DomainError{Code: e.Code, Module: e.Module, Message: e.Message + ": " + detail, Err: e.Err}
}

// IsDomainError 检查错误链中是否存在 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中的 DomainError，如果不存在则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound           = "NOT_FOUND"
	ErrorCodeNotSupported       = "NOT_SUPPORTED"
	ErrorCodeInvalidInteraction = "INVALID_INTERACTION" // 非法写入，不重试
	ErrorCodeInvalidRequest     = "INVALID_REQUEST"     // 非法推荐请求
	ErrorCodeCatalogUnavailable = "CATALOG_UNAVAILABLE" // 商品目录/向量服务不可用，内部降级
	ErrorCodeStoreUnavailable   = "STORE_UNAVAILABLE"   // 行为存储不可读写
	ErrorCodeNoCandidates       = "NO_CANDIDATES"       // 所有信号源都没有候选
	ErrorCodeUnauthorized       = "UNAUTHORIZED"
)

// 模块名称常量
const (
	ModuleStore   = "store"
	ModuleCatalog = "catalog"
	ModuleService = "service"
	ModuleAuth    = "auth"
)

var (
	ErrInvalidInteraction = NewDomainError(ModuleStore, ErrorCodeInvalidInteraction, "invalid interaction")
	ErrInvalidRequest     = NewDomainError(ModuleService, ErrorCodeInvalidRequest, "invalid request")
	ErrCatalogUnavailable = NewDomainError(ModuleCatalog, ErrorCodeCatalogUnavailable, "catalog unavailable")
	ErrStoreUnavailable   = NewDomainError(ModuleStore, ErrorCodeStoreUnavailable, "interaction store unavailable")
	ErrNoCandidates       = NewDomainError(ModuleService, ErrorCodeNoCandidates, "no recommendation candidates")
	ErrUnauthorized       = NewDomainError(ModuleAuth, ErrorCodeUnauthorized, "unauthorized")

	// ErrStoreNotFound 表示 key 不存在
	ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: key not found")

	// ErrStoreNotSupported 表示操作不支持
	ErrStoreNotSupported = NewDomainError(ModuleStore, ErrorCodeNotSupported, "store: operation not supported")
)

func hasCode(err error, code string) bool {
	de := GetDomainError(err)
	return de != nil && de.Code == code
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool { return hasCode(err, ErrorCodeNotSupported) }

func IsInvalidInteraction(err error) bool { return hasCode(err, ErrorCodeInvalidInteraction) }

func IsInvalidRequest(err error) bool { return hasCode(err, ErrorCodeInvalidRequest) }

func IsCatalogUnavailable(err error) bool { return hasCode(err, ErrorCodeCatalogUnavailable) }

func IsStoreUnavailable(err error) bool { return hasCode(err, ErrorCodeStoreUnavailable) }

func IsNoCandidates(err error) bool { return hasCode(err, ErrorCodeNoCandidates) }

// IsStoreNotFound 检查错误是否为 key 不存在
func IsStoreNotFound(err error) bool {
	de := GetDomainError(err)
	return de != nil && de.Module == ModuleStore && de.Code == ErrorCodeNotFound
}
