package consul

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	mapi "github.com/airenas/meetsum/internal/pkg/api"
	"github.com/airenas/meetsum/internal/pkg/analyzer"
	"github.com/airenas/meetsum/internal/pkg/utils"
	"github.com/hashicorp/consul/api"
	"go.uber.org/multierr"
)

const (
	pathKey      = "path"
	isHTTPSSLKey = "HTTPSSL"
	priorityKey  = "priority"
)

type srvClient interface {
	Transcribe(ctx context.Context, file *mapi.UploadFile) (*mapi.TranscriptionResult, error)
	Analyze(ctx context.Context, req *mapi.AnalysisRequest) (*mapi.AnalysisResult, error)
}

// Provider keeps clients of healthy service instances registered in consul
type Provider struct {
	consul    *api.Client
	srvName   string
	newClient func(url string) (srvClient, error)

	lock    *sync.RWMutex
	clients []*clWrap
}

type clWrap struct {
	real     srvClient
	srv      string
	key      string
	priority float64
}

// NewProvider creates consul service provider, timeout and retries are passed to every instance client
func NewProvider(cfg *api.Config, srvNameInConsul string, timeout time.Duration, retries int) (*Provider, error) {
	c, err := api.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if srvNameInConsul == "" {
		return nil, fmt.Errorf("no srv name")
	}
	res := newProvider(c, srvNameInConsul)
	res.newClient = func(url string) (srvClient, error) {
		return analyzer.NewClient(url, timeout, retries)
	}
	return res, nil
}

func newProvider(c *api.Client, srvNameInConsul string) *Provider {
	goapp.Log.Info().Str("service", srvNameInConsul).Msg("cfg: srv name in consul")
	return &Provider{consul: c, srvName: srvNameInConsul, lock: &sync.RWMutex{}, clients: make([]*clWrap, 0),
		newClient: func(url string) (srvClient, error) { return analyzer.NewClient(url, 0, 0) }}
}

// Transcribe calls one of the active instances
func (c *Provider) Transcribe(ctx context.Context, file *mapi.UploadFile) (*mapi.TranscriptionResult, error) {
	cl, srv, err := c.get()
	if err != nil {
		return nil, err
	}
	goapp.Log.Debug().Str("service", srv).Msg("transcribe")
	return cl.Transcribe(ctx, file)
}

// Analyze calls one of the active instances
func (c *Provider) Analyze(ctx context.Context, req *mapi.AnalysisRequest) (*mapi.AnalysisResult, error) {
	cl, srv, err := c.get()
	if err != nil {
		return nil, err
	}
	goapp.Log.Debug().Str("service", srv).Msg("analyze")
	return cl.Analyze(ctx, req)
}

func (c *Provider) get() (srvClient, string, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if len(c.clients) == 0 {
		return nil, "", utils.NewErrTransport(fmt.Errorf("no active '%s' service", c.srvName))
	}
	if len(c.clients) == 1 {
		t := c.clients[0]
		return t.real, t.srv, nil
	}
	i, err := getRandomByPriority(c.clients)
	if err != nil {
		return nil, "", utils.NewErrTransport(fmt.Errorf("can't select service: %w", err))
	}
	t := c.clients[i]
	return t.real, t.srv, nil
}

func getRandomByPriority(wraps []*clWrap) (int, error) {
	prMax := 0.0
	for _, tr := range wraps {
		prMax += tr.priority
	}
	if prMax < 0.1 {
		return 0, fmt.Errorf("wrong priority sum found %f", prMax)
	}
	rnd := rand.Float64() * prMax
	prMax = 0.0
	for i, tr := range wraps {
		prMax += tr.priority
		if prMax > rnd {
			return i, nil
		}
	}
	return len(wraps) - 1, nil
}

// StartRegistryLoop refreshes instances every checkInterval until ctx is done
func (c *Provider) StartRegistryLoop(ctx context.Context, checkInterval time.Duration) (<-chan struct{}, error) {
	goapp.Log.Info().Msgf("Starting consul service check every %v", checkInterval)
	res := make(chan struct{}, 2)
	go func() {
		defer close(res)
		c.serviceLoop(ctx, checkInterval)
	}()
	return res, nil
}

func (c *Provider) serviceLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	// run on startup
	if err := c.check(ctx); err != nil {
		goapp.Log.Error().Err(err).Send()
	}
	for {
		select {
		case <-ticker.C:
			if err := c.check(ctx); err != nil {
				goapp.Log.Error().Err(err).Send()
			}
		case <-ctx.Done():
			ticker.Stop()
			goapp.Log.Info().Msgf("Stopped consul timer service")
			return
		}
	}
}

func (c *Provider) check(ctx context.Context) error {
	ctxInt, cf := context.WithTimeout(ctx, time.Second*5)
	defer cf()
	srvs, _, err := c.consul.Health().Service(c.srvName, "", true, (&api.QueryOptions{}).WithContext(ctxInt))
	if err != nil {
		return fmt.Errorf("can't invoke consul: %w", err)
	}
	return c.updateSrv(srvs)
}

func (c *Provider) updateSrv(srvs []*api.ServiceEntry) error {
	goapp.Log.Debug().Msgf("got %d services from consul", len(srvs))
	c.lock.Lock()
	defer c.lock.Unlock()
	ms := map[string]*api.ServiceEntry{}
	for _, s := range srvs {
		ms[key(s)] = s
	}
	kept := []*clWrap{}
	for _, s := range c.clients {
		if v, ok := ms[s.srv]; ok && s.key == fullKey(v) {
			kept = append(kept, s)
			delete(ms, s.srv)
			continue
		}
		goapp.Log.Warn().Str("service", s.srv).Msgf("dropped service")
	}
	if len(kept) == len(c.clients) && len(ms) == 0 {
		return nil
	}
	c.clients = kept
	var err error
	for k, s := range ms {
		cl, errInt := c.newWrap(k, s)
		if errInt != nil {
			err = multierr.Append(err, errInt)
			continue
		}
		c.clients = append(c.clients, cl)
		goapp.Log.Info().Str("service", k).Float64("priority", cl.priority).Msg("added service")
	}
	return err
}

func (c *Provider) newWrap(k string, s *api.ServiceEntry) (*clWrap, error) {
	priority, err := getPriority(s)
	if err != nil {
		return nil, fmt.Errorf("can't init client for %s: %w", k, err)
	}
	cl, err := c.newClient(getURL(s))
	if err != nil {
		return nil, fmt.Errorf("can't init client for %s: %w", k, err)
	}
	return &clWrap{real: cl, srv: k, key: fullKey(s), priority: priority}, nil
}

func getPriority(s *api.ServiceEntry) (float64, error) {
	v, ok := s.Service.Meta[priorityKey]
	if !ok {
		return 1, nil
	}
	res, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("can't parse priority '%s': %w", v, err)
	}
	if res < 0.5 || res > 50 {
		return 0, fmt.Errorf("wrong priority value '%f', not in [0.5, 50]", res)
	}
	return res, nil
}

func getURL(s *api.ServiceEntry) string {
	ssl := ""
	if isSSL, ok := s.Service.Meta[isHTTPSSLKey]; ok {
		if boolValue, err := strconv.ParseBool(isSSL); err == nil && boolValue {
			ssl = "s"
		}
	}
	return fmt.Sprintf("http%s://%s:%d/%s", ssl, s.Service.Address, s.Service.Port,
		strings.TrimPrefix(s.Service.Meta[pathKey], "/"))
}

func key(s *api.ServiceEntry) string {
	return fmt.Sprintf("%s:%d", s.Service.Address, s.Service.Port)
}

func fullKey(s *api.ServiceEntry) string {
	res := strings.Builder{}
	for _, key := range [...]string{pathKey, isHTTPSSLKey, priorityKey} {
		v, ok := s.Service.Meta[key]
		if ok {
			res.WriteString(key + ":" + v + ",")
		}
	}
	return res.String()
}
