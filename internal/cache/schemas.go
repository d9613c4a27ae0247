package cache

import "embed"

// sqlSchemas embeds the cache's migration files at compile time.
//
//go:embed migrations/*.sql
var sqlSchemas embed.FS
