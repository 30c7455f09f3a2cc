package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/boomware/crosslist/internal/services"
)

type Handlers struct {
	Health    *HealthHandler
	Pipeline  *PipelineHandler
	Inventory *InventoryHandler
	Reports   *ReportsHandler
	Metrics   *MetricsHandler
}

func New(logger *logrus.Logger, services *services.Services) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(logger, services.Health),
		Pipeline:  NewPipelineHandler(services.Pipeline, services.MessageBus, logger),
		Inventory: NewInventoryHandler(services.Inventory, logger),
		Reports:   NewReportsHandler(services.Inventory, services.Metrics, logger),
		Metrics:   NewMetricsHandler(logger, services.Metrics, services.JobQueue),
	}
}
