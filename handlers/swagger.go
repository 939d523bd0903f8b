package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the collab service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRouter) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>gogotex-collab — Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document for the REST surface. The websocket protocol is described on /ws.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "gogotex-collab", "version": "v0.2.0" },
  "paths": {
    "/api/documents": {
      "post": {
        "summary": "Create a document, optionally password protected",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"title":{"type":"string"},"password":{"type":"string"}}}}}},
        "responses": { "201": { "description": "documentId and title" }, "400": { "description": "invalid body" } }
      }
    },
    "/api/documents/{id}": {
      "get": { "summary": "Document metadata without content", "responses": { "200": { "description": "document info" }, "404": { "description": "not found" } } }
    },
    "/api/documents/{id}/join": {
      "post": {
        "summary": "Exchange the document password for a join ticket",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"password":{"type":"string"}}}}}},
        "responses": { "200": { "description": "ticket and expiresIn" }, "401": { "description": "invalid password" }, "404": { "description": "not found" } }
      }
    },
    "/api/documents/{id}/password": {
      "put": {
        "summary": "Set, change or clear the document password",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"currentPassword":{"type":"string"},"newPassword":{"type":"string"}}}}}},
        "responses": { "204": { "description": "changed; outstanding tickets revoked" }, "401": { "description": "invalid password" } }
      }
    },
    "/api/documents/{id}/versions": {
      "get": { "summary": "Version history, newest first, without content", "parameters": [{"name":"limit","in":"query","schema":{"type":"integer"}}], "responses": { "200": { "description": "versions" }, "401": { "description": "ticket required" } } }
    },
    "/api/versions/{versionId}": {
      "get": { "summary": "One version with content", "responses": { "200": { "description": "version" }, "404": { "description": "not found" } } }
    },
    "/api/compile/{jobId}": {
      "get": { "summary": "Compile job status", "responses": { "200": { "description": "job" }, "401": { "description": "ticket required" }, "404": { "description": "not found" } } }
    },
    "/ws": { "get": { "summary": "Websocket upgrade for join, text-change, compile and leave frames", "responses": { "101": { "description": "switching protocols" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
