package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/jvcardoso/proteamcare-billing/internal/clock"
	"github.com/jvcardoso/proteamcare-billing/internal/config"
	"github.com/jvcardoso/proteamcare-billing/internal/logger"
	"github.com/jvcardoso/proteamcare-billing/internal/migration"
	"github.com/jvcardoso/proteamcare-billing/internal/server"
	"github.com/jvcardoso/proteamcare-billing/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
