package core

import (
	"github.com/gofiber/fiber/v2"
)

type exchangeStatus struct {
	Id       string   `json:"id"`
	Name     string   `json:"name"`
	ImplName string   `json:"implName"`
	State    string   `json:"state"`
	Markets  []string `json:"markets"`
}

func SetupFiberApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "xchg",
		DisableStartupMessage: true,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "data": nil})
	})

	app.Get("/exchanges", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "data": exchangeStatuses()})
	})

	app.Get("/exchanges/:id", func(c *fiber.Ctx) error {
		for _, s := range exchangeStatuses() {
			if s.Id == c.Params("id") {
				return c.JSON(fiber.Map{"success": true, "data": s})
			}
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "exchange not found"})
	})

	return app
}

func exchangeStatuses() []exchangeStatus {
	statuses := []exchangeStatus{}
	for _, id := range ExchangeIds() {
		exchg, exists := GetExchange(id)
		if !exists {
			continue
		}
		markets := []string{}
		for _, m := range MarketsOf(id) {
			markets = append(markets, m.Id)
		}
		statuses = append(statuses, exchangeStatus{
			Id:       id,
			Name:     string(exchg.Name()),
			ImplName: exchg.ImplName(),
			State:    string(exchg.State()),
			Markets:  markets,
		})
	}
	return statuses
}

func ShutdownFiberApp(app *fiber.App) {
	_ = app.Shutdown()
}
