package config

import (
	"time"

	"github.com/spf13/viper"
)

type registrarDefault struct {
	name     string
	kind     string
	timeout  time.Duration
	avgPrice string
	baseURL  string
}

var registrarDefaults = []registrarDefault{
	{name: "porkbun", kind: "porkbun", timeout: 8 * time.Second, avgPrice: "7.85"},
	{name: "namesilo", kind: "namesilo", timeout: 10 * time.Second, avgPrice: "8.39"},
	{name: "namecheap", kind: "namecheap", timeout: 10 * time.Second, avgPrice: "8.99"},
	{name: "namecom", kind: "namecom", timeout: 8 * time.Second, avgPrice: "9.99"},
	{name: "godaddy", kind: "godaddy", timeout: 10 * time.Second, avgPrice: "12.99"},
	{name: "hover", kind: "generic", timeout: 12 * time.Second, avgPrice: "10.99", baseURL: "https://www.hover.com/api/domains/{domain}/check"},
	{name: "bigrock", kind: "generic", timeout: 15 * time.Second, avgPrice: "11.99", baseURL: "https://httpapi.com/api/domains/available.json"},
	{name: "dynadot", kind: "dynadot", timeout: 10 * time.Second, avgPrice: "9.85"},
}

func setDefaults(v *viper.Viper) {
	regs := make([]map[string]any, 0, len(registrarDefaults))
	for _, d := range registrarDefaults {
		regs = append(regs, map[string]any{
			"name":      d.name,
			"kind":      d.kind,
			"enabled":   true,
			"timeout":   d.timeout,
			"avg_price": d.avgPrice,
			"base_url":  d.baseURL,
		})
	}
	v.SetDefault("registrars", regs)

	v.SetDefault("locations", map[string]any{
		"US":        map[string]any{"markup": "2.00", "currency": "USD", "symbol": "$"},
		"India":     map[string]any{"markup": "100", "currency": "INR", "symbol": "₹"},
		"UK":        map[string]any{"markup": "1.50", "currency": "GBP", "symbol": "£"},
		"EU":        map[string]any{"markup": "1.50", "currency": "EUR", "symbol": "€"},
		"Canada":    map[string]any{"markup": "2.50", "currency": "CAD", "symbol": "C$"},
		"Australia": map[string]any{"markup": "2.00", "currency": "AUD", "symbol": "A$"},
		"Germany":   map[string]any{"markup": "1.50", "currency": "EUR", "symbol": "€"},
		"France":    map[string]any{"markup": "1.50", "currency": "EUR", "symbol": "€"},
		"Japan":     map[string]any{"markup": "200", "currency": "JPY", "symbol": "¥"},
		"Brazil":    map[string]any{"markup": "8.00", "currency": "BRL", "symbol": "R$"},
		"default":   map[string]any{"markup": "1.00", "currency": "USD", "symbol": "$"},
	})
	v.SetDefault("rates", map[string]any{
		"USD": "1",
		"INR": "83",
		"EUR": "0.93",
		"GBP": "0.79",
		"CAD": "1.35",
		"AUD": "1.50",
		"JPY": "149",
		"BRL": "5.5",
	})

	v.SetDefault("policy.min_margin", "1.50")
	v.SetDefault("policy.max_markup_percent", "50")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.prefix", "dotprice:")
	v.SetDefault("cache.ttl_available", 5*time.Minute)
	v.SetDefault("cache.ttl_unavailable", time.Hour)

	v.SetDefault("deadline", 20*time.Second)
	v.SetDefault("max_conns_per_host", 10)
	v.SetDefault("bulk_concurrency", 0)
	v.SetDefault("breaker.failures", 5)
	v.SetDefault("breaker.open_duration", 30*time.Second)

	v.SetDefault("queue.backend", "redis")
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.stream", "dotprice:orders")
	v.SetDefault("queue.group", "dotprice-workers")
	v.SetDefault("queue.claim_idle", time.Minute)
	v.SetDefault("queue.claim_interval", 30*time.Second)
	v.SetDefault("queue.kafka_brokers", []string{"localhost:9092"})
	v.SetDefault("queue.topic", "dotprice.orders")

	v.SetDefault("store.backend", "redis")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.dsn", "")

	v.SetDefault("verify.strict", false)
	v.SetDefault("verify.no_whois", false)
	v.SetDefault("verify.timeout", 8*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}
