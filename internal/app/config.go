package app

import (
	"fabrica/internal/config"
	"fabrica/internal/delivery"
	"fabrica/internal/storage"
	"fabrica/internal/translate"
	"fabrica/internal/webhook"
)

// The on-disk config keeps durations as strings; these converters produce the
// typed component configs and surface bad values with their config path.

func storageConfig(c *config.StorageConfig) (storage.Config, error) {
	if c == nil {
		return storage.Config{}, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", c.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: c.Driver, Path: c.Path, BusyTimeout: busy}, nil
}

func translationConfig(c config.TranslationConfig) (translate.Config, error) {
	timeout, err := config.ParseDurationField("translation.timeout", c.Timeout)
	if err != nil {
		return translate.Config{}, err
	}
	return translate.Config{
		BaseURL:    c.BaseURL,
		APIKey:     c.APIKey,
		Model:      c.Model,
		MaxTokens:  c.MaxTokens,
		RatePerSec: c.RatePerSec,
		Timeout:    timeout,
	}, nil
}

func deliveryConfig(c config.DeliveryConfig) (delivery.Config, error) {
	base, err := config.ParseDurationField("delivery.retry_base", c.RetryBase)
	if err != nil {
		return delivery.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("delivery.retry_max_delay", c.RetryMaxDelay)
	if err != nil {
		return delivery.Config{}, err
	}
	ttl, err := config.ParseDurationField("delivery.dedup_ttl", c.DedupTTL)
	if err != nil {
		return delivery.Config{}, err
	}
	return delivery.Config{
		RetryMax:             c.RetryMax,
		RetryBase:            base,
		RetryMaxDelay:        maxDelay,
		RetryJitter:          c.RetryJitter,
		BroadcastConcurrency: c.BroadcastConcurrency,
		BroadcastRatePerSec:  c.BroadcastRatePerSec,
		DMConcurrency:        c.DMConcurrency,
		DMRatePerSec:         c.DMRatePerSec,
		DedupTTL:             ttl,
	}, nil
}

func webhookConfig(c config.WebhooksConfig) (webhook.Config, error) {
	readTimeout, err := config.ParseDurationField("webhooks.read_timeout", c.ReadTimeout)
	if err != nil {
		return webhook.Config{}, err
	}
	writeTimeout, err := config.ParseDurationField("webhooks.write_timeout", c.WriteTimeout)
	if err != nil {
		return webhook.Config{}, err
	}
	return webhook.Config{
		Enabled:      c.Enabled,
		Addr:         c.Addr,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}, nil
}
