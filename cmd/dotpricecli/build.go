package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/benithors/dotpricecli/internal/cache"
	"github.com/benithors/dotpricecli/internal/config"
	"github.com/benithors/dotpricecli/internal/order"
	"github.com/benithors/dotpricecli/internal/pricing"
	"github.com/benithors/dotpricecli/internal/registrar"
	"github.com/benithors/dotpricecli/internal/registrar/dynadot"
	"github.com/benithors/dotpricecli/internal/registrar/generic"
	"github.com/benithors/dotpricecli/internal/registrar/godaddy"
	"github.com/benithors/dotpricecli/internal/registrar/namecheap"
	"github.com/benithors/dotpricecli/internal/registrar/namecom"
	"github.com/benithors/dotpricecli/internal/registrar/namesilo"
	"github.com/benithors/dotpricecli/internal/registrar/porkbun"
	"github.com/benithors/dotpricecli/internal/verify"
)

// pricingEngine builds the engine on first use.
func (a *app) pricingEngine() (*pricing.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}
	cfg := a.cfg

	rt := registrar.NewTransport(cfg.MaxConnsPerHost)
	clients := a.buildRegistrars(rt)
	if len(clients) == 0 {
		return nil, fmt.Errorf("%w: no enabled registrar has credentials (set e.g. PORKBUN_API_KEY and PORKBUN_SECRET_API_KEY)", pricing.ErrConfiguration)
	}

	rates, err := cfg.ExchangeRates()
	if err != nil {
		return nil, err
	}
	rules, err := cfg.Rules()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.PricingPolicy()
	if err != nil {
		return nil, err
	}
	rec, err := a.recorder()
	if err != nil {
		return nil, err
	}

	var c cache.Cache
	switch strings.ToLower(cfg.Cache.Backend) {
	case "", "memory":
		c = cache.NewMemoryCache(time.Minute)
	case "redis":
		c = cache.NewRedisCache(redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		}), cfg.Cache.Prefix)
	}

	e, err := pricing.New(pricing.Options{
		Registrars: clients,
		Rules:      rules,
		Rates:      rates,
		Policy:     policy,
		Cache:      c,
		Metrics:    rec,
		Logger:     a.log,
		Deadline:   cfg.Deadline,
		CacheTTL: pricing.CacheTTL{
			Available:   cfg.Cache.TTLAvailable,
			Unavailable: cfg.Cache.TTLUnavailable,
		},
		BreakerFailures:     cfg.Breaker.Failures,
		BreakerOpenDuration: cfg.Breaker.OpenDuration,
		BulkConcurrency:     cfg.BulkConcurrency,
		Transport:           rt,
	})
	if err != nil {
		if c != nil {
			_ = c.Close()
		}
		return nil, err
	}
	a.engine = e
	a.closers = append(a.closers, e)
	return e, nil
}

func (a *app) buildRegistrars(rt http.RoundTripper) []registrar.Client {
	var out []registrar.Client
	for _, rc := range a.cfg.Registrars {
		if !rc.Enabled {
			continue
		}
		log := a.log.WithField("registrar", rc.Name)
		c, err := newRegistrar(rc, rt)
		switch {
		case errors.Is(err, registrar.ErrMissingCredentials):
			log.Debug("registrar skipped: missing credentials")
			continue
		case err != nil:
			log.WithError(err).Warn("registrar skipped")
			continue
		}
		out = append(out, c)
	}
	return out
}

func newRegistrar(rc config.RegistrarConfig, rt http.RoundTripper) (registrar.Client, error) {
	avg := decimal.Zero
	if rc.AvgPrice != "" {
		d, err := decimal.NewFromString(rc.AvgPrice)
		if err != nil {
			return nil, fmt.Errorf("bad avg_price %q: %w", rc.AvgPrice, err)
		}
		avg = d
	}

	switch strings.ToLower(rc.Kind) {
	case "porkbun":
		return porkbun.NewClient(porkbun.Options{
			APIKey:        rc.APIKey,
			SecretAPIKey:  rc.APISecret,
			BaseURL:       rc.BaseURL,
			Timeout:       rc.Timeout,
			MinDelay:      rc.MinDelay,
			MaxConcurrent: rc.MaxConcurrent,
			Transport:     rt,
		})
	case "godaddy":
		return godaddy.NewClient(godaddy.Options{
			APIKey:    rc.APIKey,
			APISecret: rc.APISecret,
			BaseURL:   rc.BaseURL,
			Timeout:   rc.Timeout,
			Transport: rt,
		})
	case "namecheap":
		return namecheap.NewClient(namecheap.Options{
			APIUser:       rc.Username,
			APIKey:        rc.APIKey,
			ClientIP:      rc.ClientIP,
			BaseURL:       rc.BaseURL,
			Timeout:       rc.Timeout,
			StandardPrice: avg,
			Transport:     rt,
		})
	case "namecom":
		return namecom.NewClient(namecom.Options{
			Username:  rc.Username,
			Token:     rc.APIKey,
			BaseURL:   rc.BaseURL,
			Timeout:   rc.Timeout,
			Transport: rt,
		})
	case "namesilo":
		return namesilo.NewClient(namesilo.Options{
			APIKey:    rc.APIKey,
			BaseURL:   rc.BaseURL,
			Timeout:   rc.Timeout,
			Transport: rt,
		})
	case "dynadot":
		return dynadot.NewClient(dynadot.Options{
			APIKey:    rc.APIKey,
			BaseURL:   rc.BaseURL,
			Timeout:   rc.Timeout,
			Transport: rt,
		})
	case "generic":
		return generic.NewClient(generic.Options{
			Name:       rc.Name,
			URL:        rc.BaseURL,
			AuthHeader: rc.AuthHeader,
			APIKey:     rc.APIKey,
			AvgPrice:   avg,
			Timeout:    rc.Timeout,
			Transport:  rt,
		})
	default:
		return nil, fmt.Errorf("unknown registrar kind %q", rc.Kind)
	}
}

func (a *app) orderStore(ctx context.Context) (order.Store, error) {
	sc := a.cfg.Store
	var s order.Store
	switch strings.ToLower(sc.Backend) {
	case "postgres":
		p, err := order.OpenPostgres(ctx, sc.DSN)
		if err != nil {
			return nil, err
		}
		s = p
	default:
		s = order.NewRedisStore(redis.NewClient(&redis.Options{Addr: sc.RedisAddr}), a.cfg.Cache.Prefix)
	}
	a.closers = append(a.closers, s)
	return s, nil
}

func (a *app) orderQueue() order.Queue {
	qc := a.cfg.Queue
	var q order.Queue
	switch strings.ToLower(qc.Backend) {
	case "kafka":
		q = order.NewKafkaQueue(order.KafkaQueueOptions{
			Brokers: qc.KafkaBrokers,
			Topic:   qc.Topic,
			GroupID: qc.Group,
			Logger:  a.log,
		})
	default:
		q = order.NewRedisQueue(redis.NewClient(&redis.Options{Addr: qc.RedisAddr}), order.RedisQueueOptions{
			Stream:        qc.Stream,
			Group:         qc.Group,
			ClaimIdle:     qc.ClaimIdle,
			ClaimInterval: qc.ClaimInterval,
			Logger:        a.log,
		})
	}
	a.closers = append(a.closers, q)
	return q
}

func (a *app) verifier() *verify.Verifier {
	vc := a.cfg.Verify
	v := verify.Options{
		RDAP:    verify.NewRDAPClient(verify.RDAPOptions{Timeout: vc.Timeout}),
		NoWHOIS: vc.NoWHOIS,
		Logger:  a.log,
	}
	if !vc.NoWHOIS {
		v.WHOIS = verify.NewWHOISClient(verify.WHOISOptions{Timeout: vc.Timeout})
	}
	return verify.New(v)
}

// orderService wires the store, the queue and the pricing engine.
func (a *app) orderService(ctx context.Context) (*order.Service, error) {
	e, err := a.pricingEngine()
	if err != nil {
		return nil, err
	}
	store, err := a.orderStore(ctx)
	if err != nil {
		return nil, err
	}
	return order.NewService(order.ServiceOptions{
		Store:  store,
		Queue:  a.orderQueue(),
		Pricer: e,
		Logger: a.log,
	})
}
