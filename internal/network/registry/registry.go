package registry

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/wsgarden/internal/network/encoding"
	"github.com/lk2023060901/wsgarden/internal/network/endpoint"
	"github.com/lk2023060901/wsgarden/internal/network/pathtemplate"
	"github.com/lk2023060901/wsgarden/pkg/log"
	"github.com/lk2023060901/wsgarden/pkg/util/merr"
	"github.com/lk2023060901/wsgarden/pkg/util/typeutil"
)

// Registry 保存服务端端点（按路径模板）与客户端端点（按声明类型）。
//
// 所有修改操作在同一把锁下串行执行；Finalize 之后注册接口一律返回 ErrDeploymentSealed，
// 已注册成功的端点仍然可用。
type Registry struct {
	log.Binder

	codecs *encoding.Factory

	mu             sync.Mutex
	sealed         atomic.Bool
	templates      *pathtemplate.Set
	servers        map[string]*endpoint.ConfiguredServerEndpoint
	scanned        typeutil.Set[reflect.Type]
	deploymentErrs []error

	// reflect.Type -> *endpoint.ConfiguredClientEndpoint，读路径无锁
	clients sync.Map
}

// New 创建注册表，codecs 为空时使用默认的编解码器集合。
func New(codecs *encoding.Factory) *Registry {
	if codecs == nil {
		codecs = encoding.NewFactory()
	}
	return &Registry{
		codecs:    codecs,
		templates: pathtemplate.NewSet(),
		servers:   make(map[string]*endpoint.ConfiguredServerEndpoint),
		scanned:   typeutil.NewSet[reflect.Type](),
	}
}

func (r *Registry) Codecs() *encoding.Factory {
	return r.codecs
}

// AddServerEndpoint 以显式描述注册服务端端点。
//
// 与已有路径重叠时返回 ErrPathOverlap，注册表保持不变。
func (r *Registry) AddServerEndpoint(cfg endpoint.ServerConfig) (*endpoint.ConfiguredServerEndpoint, error) {
	if r.sealed.Load() {
		return nil, merr.WrapErrDeploymentSealed(cfg.Path)
	}
	ep, err := endpoint.NewConfiguredServerEndpoint(cfg, r.codecs)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Load() {
		return nil, merr.WrapErrDeploymentSealed(cfg.Path)
	}
	if err := r.insertServerLocked(ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// AddEndpoint 注册一个声明式端点（实现 ServerDeclarer 和/或 ClientDeclarer）。
// 同一声明类型重复添加为空操作。
func (r *Registry) AddEndpoint(declared any) error {
	t := endpoint.Identity(declared)
	if r.sealed.Load() {
		return merr.WrapErrDeploymentSealed(endpoint.IdentityName(t))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Load() {
		return merr.WrapErrDeploymentSealed(endpoint.IdentityName(t))
	}
	if r.scanned.Contain(t) {
		return nil
	}

	sd, isServer := declared.(endpoint.ServerDeclarer)
	cd, isClient := declared.(endpoint.ClientDeclarer)
	if !isServer && !isClient {
		return merr.WrapErrEndpointNotDeclared(endpoint.IdentityName(t))
	}

	// 两侧端点先全部构造完成，再修改注册表，任一失败都不留下部分注册
	var server *endpoint.ConfiguredServerEndpoint
	if isServer {
		cfg := sd.ServerEndpoint()
		if cfg.Factory == nil {
			if f, ok := declared.(endpoint.Factory); ok {
				cfg.Factory = f
			}
		}
		ep, err := endpoint.NewConfiguredServerEndpoint(cfg, r.codecs)
		if err != nil {
			return err
		}
		server = ep
	}
	var client *endpoint.ConfiguredClientEndpoint
	if isClient {
		if _, ok := r.clients.Load(t); !ok {
			ep, err := endpoint.NewConfiguredClientEndpoint(endpoint.IdentityName(t), cd.ClientEndpoint(), r.codecs)
			if err != nil {
				return err
			}
			client = ep
		}
	}

	if server != nil {
		if err := r.insertServerLocked(server); err != nil {
			return err
		}
	}
	if client != nil {
		r.storeClientLocked(t, client)
	}
	r.scanned.Insert(t)
	return nil
}

// Scan 批量注册声明式端点，失败不立即返回，而是累积到 Finalize 时统一报告。
// 仅在注册表已封存时返回错误。
func (r *Registry) Scan(declared ...any) error {
	for _, d := range declared {
		err := r.AddEndpoint(d)
		if err == nil {
			continue
		}
		if errors.Is(err, merr.ErrDeploymentSealed) {
			return err
		}
		r.Logger().Warn("endpoint deployment failed", zap.String("endpoint", fmt.Sprintf("%T", d)), zap.Error(err))
		r.mu.Lock()
		r.deploymentErrs = append(r.deploymentErrs, err)
		r.mu.Unlock()
	}
	return nil
}

// Finalize 封存注册表，单向且可重复调用。
// 存在累积的部署错误时返回汇总错误，其中每个错误都可以通过 errors.Is 匹配。
func (r *Registry) Finalize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.sealed.Swap(true) {
		r.Logger().Info("endpoint deployment complete",
			zap.Int("serverEndpoints", len(r.servers)),
			zap.Int("deploymentErrors", len(r.deploymentErrs)))
	}
	return merr.WrapErrDeploymentFailed(r.deploymentErrs...)
}

func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// ResolveClient 沿包装链找到最近的客户端声明并返回对应端点，首次解析时自动注册。
// 并发解析同一声明类型时只会创建一个端点。
func (r *Registry) ResolveClient(instance any) (*endpoint.ConfiguredClientEndpoint, error) {
	d, ok := endpoint.FindClientDeclarer(instance)
	if !ok {
		return nil, merr.WrapErrNotAClientEndpoint(fmt.Sprintf("%T", instance))
	}
	t := endpoint.Identity(d)
	if v, ok := r.clients.Load(t); ok {
		return v.(*endpoint.ConfiguredClientEndpoint), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerClientLocked(t, d)
}

func (r *Registry) registerClientLocked(t reflect.Type, d endpoint.ClientDeclarer) (*endpoint.ConfiguredClientEndpoint, error) {
	if v, ok := r.clients.Load(t); ok {
		return v.(*endpoint.ConfiguredClientEndpoint), nil
	}
	ep, err := endpoint.NewConfiguredClientEndpoint(endpoint.IdentityName(t), d.ClientEndpoint(), r.codecs)
	if err != nil {
		return nil, err
	}
	r.storeClientLocked(t, ep)
	return ep, nil
}

func (r *Registry) storeClientLocked(t reflect.Type, ep *endpoint.ConfiguredClientEndpoint) {
	r.clients.Store(t, ep)
	r.Logger().Info("client endpoint registered", zap.String("identity", ep.Identity()))
}

func (r *Registry) insertServerLocked(ep *endpoint.ConfiguredServerEndpoint) error {
	if conflict, ok := r.templates.Add(ep.Template()); !ok {
		return merr.WrapErrPathOverlap(ep.Identity(), conflict.String())
	}
	r.servers[ep.Identity()] = ep
	r.Logger().Info("server endpoint registered",
		zap.String("path", ep.Identity()),
		zap.Strings("subprotocols", ep.Config().Subprotocols))
	return nil
}

// Match 查找匹配请求路径的服务端端点。
func (r *Registry) Match(path string) (*endpoint.ConfiguredServerEndpoint, map[string]string, bool) {
	t, params, ok := r.templates.Match(path)
	if !ok {
		return nil, nil, false
	}
	r.mu.Lock()
	ep, ok := r.servers[t.String()]
	r.mu.Unlock()
	return ep, params, ok
}

// ServerEndpoint 按路径模板文本查找服务端端点。
func (r *Registry) ServerEndpoint(path string) (*endpoint.ConfiguredServerEndpoint, bool) {
	t, err := pathtemplate.Parse(path)
	if err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ep, ok := r.servers[t.String()]
	return ep, ok
}

// ServerEndpoints 按模板排序返回所有服务端端点。
func (r *Registry) ServerEndpoints() []*endpoint.ConfiguredServerEndpoint {
	templates := r.templates.Templates()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*endpoint.ConfiguredServerEndpoint, 0, len(templates))
	for _, t := range templates {
		if ep, ok := r.servers[t.String()]; ok {
			out = append(out, ep)
		}
	}
	return out
}

// ClientEndpoints 返回已注册的客户端端点。
func (r *Registry) ClientEndpoints() []*endpoint.ConfiguredClientEndpoint {
	var out []*endpoint.ConfiguredClientEndpoint
	r.clients.Range(func(_, v any) bool {
		out = append(out, v.(*endpoint.ConfiguredClientEndpoint))
		return true
	})
	return out
}

// DeploymentErrors 返回当前累积的部署错误。
func (r *Registry) DeploymentErrors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.deploymentErrs...)
}
