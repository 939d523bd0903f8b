package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRealtime mounts the websocket endpoint.
func RegisterRealtime(r gin.IRouter, ws http.Handler) {
	r.GET("/ws", gin.WrapH(ws))
}

// RegisterDownloads serves compiled PDFs written by the file artifact store.
func RegisterDownloads(r gin.IRouter, dir string) {
	r.Static("/downloads", dir)
}
