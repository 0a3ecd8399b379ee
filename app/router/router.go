package router

import (
	"github.com/aihub/medical-rag/app/controllers"
	"github.com/aihub/medical-rag/app/middleware"
	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"
)

// Init registers all routes. Must be called after controllers.SetDependencies.
func Init(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}

	web.InsertFilter("/*", web.BeforeRouter, middleware.CORSMiddleware)
	web.InsertFilter("/*", web.BeforeRouter, middleware.AccessLogStart)
	web.InsertFilter("/*", web.FinishRouter, middleware.AccessLogFinish(log), web.WithReturnOnOutput(false))

	chat := &controllers.ChatController{}
	web.Router("/ask", chat, "post:Ask")
	web.Router("/api/search", chat, "get:Search")
	web.Router("/api/index/rebuild", chat, "post:Rebuild")
	web.Router("/health", chat, "get:Health")

	web.Router("/metrics", &controllers.MetricsController{}, "get:Metrics")
}
