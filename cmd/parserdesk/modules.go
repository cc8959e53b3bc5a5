package main

// Compiled modules. Each registers itself with core in init.
import (
	_ "github.com/flemzord/parserdesk/internal/cron"
	_ "github.com/flemzord/parserdesk/internal/gateway"
	_ "github.com/flemzord/parserdesk/modules/provider/openai_compatible"
	_ "github.com/flemzord/parserdesk/modules/store/sqlite"
)
