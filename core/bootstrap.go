package core

import (
	"context"
	"fmt"

	"xchg/config"

	log "github.com/sirupsen/logrus"
)

func Bootstrap(ctx context.Context, config config.Config) error {
	log.Info("🦾 Bootstrapping...")

	// register exchanges
	for exchgId, exchgConfig := range config.ExchangeConfigs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := RegisterExchange(exchgId, exchgConfig); err != nil {
			return fmt.Errorf("fail to register exchange %v: %w", exchgId, err)
		}
		exchg, _ := GetExchange(exchgId)
		log.WithFields(log.Fields{
			"exchange": exchgId,
			"impl":     exchg.ImplName(),
			"markets":  len(exchgConfig.Markets),
		}).Info("exchange registered")
	}
	return nil
}
