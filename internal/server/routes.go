package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/soundcrowd/internal/server/handlers"
)

func (s *Server) setupRoutes() {
	r := s.engine
	api := r.Group("/api")

	api.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"routes": s.routes.Get()})
	})
	s.routes.Register("/api", "GET", "Lists all available API endpoints.")

	s.setupHealthRoutes(api)
	if s.deps.Catalog != nil {
		s.setupCatalogRoutes(api)
	}
	if s.deps.Plugins != nil {
		s.setupPluginRoutes(r, api)
	}
	if s.deps.Bus != nil {
		s.setupEventRoutes(api)
	}
}

func (s *Server) setupHealthRoutes(api *gin.RouterGroup) {
	health := handlers.NewHealthHandler(s.deps.Catalog, s.deps.Plugins, s.deps.DB)
	api.GET("/health", health.Health)
	s.routes.Register(api.BasePath()+"/health", "GET", "Process, database and catalog health.")
}

func (s *Server) setupCatalogRoutes(api *gin.RouterGroup) {
	h := handlers.NewCatalogHandler(s.deps.Catalog, s.deps.Resolver, s.deps.History, s.cfg.RequestTimeout)

	catalog := api.Group("/catalog")
	{
		catalog.GET("/browse", h.Browse)
		s.routes.Register(catalog.BasePath()+"/browse", "GET", "Load one page of a category (id, offset, limit, page, refresh).")

		catalog.GET("/item", h.GetItem)
		s.routes.Register(catalog.BasePath()+"/item", "GET", "Get a cached item by canonical or hierarchy-aware id.")

		if s.deps.Resolver != nil {
			catalog.GET("/resolve", h.Resolve)
			s.routes.Register(catalog.BasePath()+"/resolve", "GET", "Resolve an item into a playable locator.")
		}

		catalog.GET("/state", h.State)
		s.routes.Register(catalog.BasePath()+"/state", "GET", "Root catalog lifecycle state.")

		catalog.POST("/refresh", h.Refresh)
		s.routes.Register(catalog.BasePath()+"/refresh", "POST", "Reload the root catalog.")

		catalog.POST("/cues", h.AddCuePoint)
		catalog.PUT("/cues", h.UpdateCuePoint)
		catalog.DELETE("/cues", h.DeleteCuePoint)
		s.routes.Register(catalog.BasePath()+"/cues", "POST, PUT, DELETE", "Manage cue points of an item.")

		catalog.GET("/position", h.GetPosition)
		catalog.PUT("/position", h.UpdatePosition)
		s.routes.Register(catalog.BasePath()+"/position", "GET, PUT", "Read or record the last playback position.")
	}

	api.GET("/search/history", h.SearchHistory)
	s.routes.Register(api.BasePath()+"/search/history", "GET", "Recent search queries (prefix, limit).")
}

func (s *Server) setupPluginRoutes(r *gin.Engine, api *gin.RouterGroup) {
	h := handlers.NewPluginsHandler(s.deps.Plugins)

	plugins := api.Group("/plugins")
	{
		plugins.GET("", h.ListPlugins)
		s.routes.Register(plugins.BasePath(), "GET", "List loaded provider plugins.")

		plugins.GET("/:name", h.GetPlugin)
		s.routes.Register(plugins.BasePath()+"/:name", "GET", "Get one plugin by name or id.")

		plugins.GET("/:name/icon", h.GetIcon)
		s.routes.Register(plugins.BasePath()+"/:name/icon", "GET", "Plugin icon image.")

		plugins.GET("/:name/preferences", h.GetPreferences)
		s.routes.Register(plugins.BasePath()+"/:name/preferences", "GET", "Plugin preference schema.")
	}

	r.GET("/callback/:host", h.HandleRedirect)
	s.routes.Register("/callback/:host", "GET", "External redirect dispatched to the plugin claiming the host.")
}

func (s *Server) setupEventRoutes(api *gin.RouterGroup) {
	var hub, stream http.Handler
	if s.deps.Hub != nil {
		hub = s.deps.Hub
	}
	if s.deps.Stream != nil {
		stream = s.deps.Stream
	}
	h := handlers.NewEventsHandler(s.deps.Bus, hub, stream)

	ev := api.Group("/events")
	{
		ev.GET("", h.Recent)
		s.routes.Register(ev.BasePath(), "GET", "Recent catalog and plugin events.")

		ev.GET("/ws", h.WebSocket)
		s.routes.Register(ev.BasePath()+"/ws", "GET", "Live events over WebSocket.")

		ev.GET("/stream", h.Stream)
		s.routes.Register(ev.BasePath()+"/stream", "GET", "Live events as server-sent events.")
	}
}
