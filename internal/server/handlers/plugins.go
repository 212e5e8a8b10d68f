package handlers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	apperrors "github.com/mantonx/soundcrowd/internal/errors"
	"github.com/mantonx/soundcrowd/internal/modules/catalogmodule/mediaid"
	"github.com/mantonx/soundcrowd/internal/modules/pluginmodule"
)

// PluginDirectory is the part of the plugin registry the API reads.
type PluginDirectory interface {
	Descriptors() []pluginmodule.Descriptor
	HandleRedirect(host, query string) bool
}

// PluginsHandler exposes loaded plugins and their redirect handlers.
type PluginsHandler struct {
	plugins PluginDirectory
}

// NewPluginsHandler creates a handler over the registry.
func NewPluginsHandler(plugins PluginDirectory) *PluginsHandler {
	return &PluginsHandler{plugins: plugins}
}

type pluginView struct {
	pluginmodule.Descriptor
	Icon       string            `json:"icon,omitempty"`
	Categories []string          `json:"categories"`
	Browse     map[string]string `json:"browse"`
}

func viewOf(d pluginmodule.Descriptor) pluginView {
	v := pluginView{
		Descriptor: d,
		Categories: d.Categories,
		Browse:     make(map[string]string, len(d.Categories)),
	}
	if v.Categories == nil {
		v.Categories = []string{}
	}
	if len(d.Icon) > 0 {
		v.Icon = "/api/plugins/" + url.PathEscape(d.Name) + "/icon"
	}
	for _, category := range d.Categories {
		v.Browse[category] = mediaid.PluginCategory(category)
	}
	return v
}

func (h *PluginsHandler) find(name string) (pluginmodule.Descriptor, bool) {
	for _, d := range h.plugins.Descriptors() {
		if d.Name == name || d.ID == name {
			return d, true
		}
	}
	return pluginmodule.Descriptor{}, false
}

// ListPlugins returns every loaded plugin in registration order.
func (h *PluginsHandler) ListPlugins(c *gin.Context) {
	descriptors := h.plugins.Descriptors()
	views := make([]pluginView, 0, len(descriptors))
	for _, d := range descriptors {
		views = append(views, viewOf(d))
	}
	c.JSON(http.StatusOK, gin.H{"plugins": views, "count": len(views)})
}

// GetPlugin returns one plugin by name or id.
func (h *PluginsHandler) GetPlugin(c *gin.Context) {
	name := c.Param("name")
	d, ok := h.find(name)
	if !ok {
		apperrors.RespondWithError(c, apperrors.ValidationError("get_plugin", apperrors.ErrPluginNotFound).WithSubject(name))
		return
	}
	c.JSON(http.StatusOK, viewOf(d))
}

// GetIcon serves the icon bytes captured when the plugin was bridged.
func (h *PluginsHandler) GetIcon(c *gin.Context) {
	name := c.Param("name")
	d, ok := h.find(name)
	if !ok || len(d.Icon) == 0 {
		apperrors.HandleNotFound(c, "plugin icon", name)
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, http.DetectContentType(d.Icon), d.Icon)
}

// GetPreferences lists the user-configurable settings of a plugin.
func (h *PluginsHandler) GetPreferences(c *gin.Context) {
	name := c.Param("name")
	d, ok := h.find(name)
	if !ok {
		apperrors.RespondWithError(c, apperrors.ValidationError("get_preferences", apperrors.ErrPluginNotFound).WithSubject(name))
		return
	}
	prefs := d.Preferences
	if prefs == nil {
		prefs = []pluginmodule.Preference{}
	}
	c.JSON(http.StatusOK, gin.H{"plugin": d.Name, "preferences": prefs})
}

// HandleRedirect receives an external redirect (for example an OAuth
// callback) and hands its query to the first plugin claiming the host.
//
//	GET /callback/:host?<query>
func (h *PluginsHandler) HandleRedirect(c *gin.Context) {
	host := c.Param("host")
	if !h.plugins.HandleRedirect(host, c.Request.URL.RawQuery) {
		apperrors.HandleNotFound(c, "redirect handler", host)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8",
		[]byte("<html><body>Login complete. You can close this window.</body></html>"))
}
