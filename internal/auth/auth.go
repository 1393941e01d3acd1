package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	xerrors "mcp-a2a/internal/errors"
	loggerpkg "mcp-a2a/pkg/logger"
)

// SchemeBearer 是 agent card 中公布的认证方式。
const SchemeBearer = "bearer"

var (
	// ErrMissingToken 表示请求未携带 Authorization 头。
	ErrMissingToken = xerrors.New(xerrors.CodeUnauthenticated, "缺少访问令牌")
	// ErrInvalidToken 表示令牌格式错误或未登记。
	ErrInvalidToken = xerrors.New(xerrors.CodeUnauthenticated, "访问令牌无效")
)

// Subject 描述通过认证的调用方。
type Subject struct {
	// ID 为令牌摘要前缀，可安全写入日志。
	ID string
}

type subjectKey struct{}

// WithSubject 将调用方信息写入上下文。
func WithSubject(ctx context.Context, subject *Subject) context.Context {
	if subject == nil {
		return ctx
	}
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext 读取调用方信息，未认证时返回 nil。
func SubjectFromContext(ctx context.Context) *Subject {
	if ctx == nil {
		return nil
	}
	subject, _ := ctx.Value(subjectKey{}).(*Subject)
	return subject
}

// Guard 保存允许访问的令牌摘要。
type Guard struct {
	digests [][sha256.Size]byte
	public  map[string]struct{}
}

// NewGuard 使用静态令牌列表构造校验器，空白令牌会被忽略。
// publicPaths 中的路径无需认证。
func NewGuard(tokens []string, publicPaths ...string) *Guard {
	g := &Guard{public: make(map[string]struct{}, len(publicPaths))}
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		g.digests = append(g.digests, sha256.Sum256([]byte(token)))
	}
	for _, p := range publicPaths {
		g.public[p] = struct{}{}
	}
	return g
}

// Enabled 返回是否配置了至少一个令牌。
func (g *Guard) Enabled() bool {
	return g != nil && len(g.digests) > 0
}

// Authenticate 校验 Authorization 头，返回调用方。
func (g *Guard) Authenticate(header string) (*Subject, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}
	digest := sha256.Sum256([]byte(strings.TrimSpace(token)))
	matched := 0
	for _, candidate := range g.digests {
		matched |= subtle.ConstantTimeCompare(digest[:], candidate[:])
	}
	if matched != 1 {
		return nil, ErrInvalidToken
	}
	return &Subject{ID: hex.EncodeToString(digest[:4])}, nil
}

// Middleware 返回认证中间件。
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := g.public[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}
		subject, err := g.Authenticate(r.Header.Get("Authorization"))
		if err != nil {
			loggerpkg.Audit().Warn("access_denied",
				"path", r.URL.Path,
				"method", r.Method,
				"remote", r.RemoteAddr,
				"error", err.Error(),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="pdfagent"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
	})
}
