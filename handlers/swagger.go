package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the API.
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
    <title>E-Vault API - Swagger</title>
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

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "E-Vault", "version": "v1.0.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } }
  },
  "paths": {
    "/api/auth/register": {
      "post": { "summary": "Create an unverified account and mail a verification code", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"username":{"type":"string"},"email":{"type":"string"},"password":{"type":"string"}}}}}}, "responses": { "201": { "description": "registered" }, "400": { "description": "invalid input" }, "409": { "description": "username or email taken" } } }
    },
    "/api/auth/verify-email": {
      "post": { "summary": "Consume a verification code", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"email":{"type":"string"},"code":{"type":"string"}}}}}}, "responses": { "200": { "description": "verified" }, "400": { "description": "invalid or expired code" } } }
    },
    "/api/auth/login": {
      "post": { "summary": "Obtain a bearer token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"username":{"type":"string"},"password":{"type":"string"}}}}}}, "responses": { "200": { "description": "token, userId, username, email" }, "401": { "description": "invalid credentials or unverified" } } }
    },
    "/api/auth/resend-verification": {
      "post": { "summary": "Issue a new verification code", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"email":{"type":"string"}}}}}}, "responses": { "200": { "description": "sent" }, "400": { "description": "already verified" }, "404": { "description": "unknown email" } } }
    },
    "/api/auth/logout": {
      "post": { "summary": "Revoke the presented token", "security": [{"bearer": []}], "responses": { "200": { "description": "logged out" } } }
    },
    "/api/auth/me": {
      "get": { "summary": "Current account", "security": [{"bearer": []}], "responses": { "200": { "description": "account" } } }
    },
    "/api/documents/upload": {
      "post": { "summary": "Upload a document", "security": [{"bearer": []}], "requestBody": { "content": { "multipart/form-data": { "schema": {"type":"object","properties":{"file":{"type":"string","format":"binary"},"title":{"type":"string"},"description":{"type":"string"},"category":{"type":"string","enum":["Legal","Financial","Personal","Business","Other"]},"tags":{"type":"string"},"expiryDate":{"type":"string"}}}}}}, "responses": { "201": { "description": "uploaded, status pending" } } }
    },
    "/api/documents": {
      "get": { "summary": "List owned and shared documents", "security": [{"bearer": []}], "responses": { "200": { "description": "documents" } } }
    },
    "/api/documents/search": {
      "get": { "summary": "Search accessible documents", "security": [{"bearer": []}], "parameters": [
        {"name":"searchTerm","in":"query","schema":{"type":"string"}},
        {"name":"category","in":"query","schema":{"type":"string"}},
        {"name":"status","in":"query","schema":{"type":"string","enum":["pending","verified","rejected"]}},
        {"name":"tags","in":"query","schema":{"type":"string"},"description":"comma separated"},
        {"name":"startDate","in":"query","schema":{"type":"string"}},
        {"name":"endDate","in":"query","schema":{"type":"string"}}
      ], "responses": { "200": { "description": "documents" } } }
    },
    "/api/documents/{id}": {
      "get": { "summary": "Document metadata", "security": [{"bearer": []}], "responses": { "200": { "description": "document" }, "404": { "description": "not found" } } },
      "patch": { "summary": "Update metadata (owner)", "security": [{"bearer": []}], "responses": { "200": { "description": "updated" } } },
      "delete": { "summary": "Delete document and all versions (owner)", "security": [{"bearer": []}], "responses": { "200": { "description": "deleted" }, "403": { "description": "not owner" } } }
    },
    "/api/documents/download/{id}": {
      "get": { "summary": "Download current bytes", "security": [{"bearer": []}], "responses": { "200": { "description": "attachment" } } }
    },
    "/api/documents/verify/{id}": {
      "post": { "summary": "Re-fingerprint stored bytes and compare with the anchor", "security": [{"bearer": []}], "responses": { "200": { "description": "verified, status, message" } } }
    },
    "/api/documents/share": {
      "post": { "summary": "Grant read access (owner)", "security": [{"bearer": []}], "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"documentId":{"type":"string"},"userId":{"type":"string"}}}}}}, "responses": { "200": { "description": "shared" } } }
    },
    "/api/documents/{id}/version": {
      "post": { "summary": "Replace content with a new version (owner)", "security": [{"bearer": []}], "responses": { "200": { "description": "new version, status pending" } } }
    },
    "/api/documents/{id}/versions": {
      "get": { "summary": "Prior versions", "security": [{"bearer": []}], "responses": { "200": { "description": "versions" } } }
    },
    "/api/documents/{id}/comments": {
      "get": { "summary": "List comments", "security": [{"bearer": []}], "responses": { "200": { "description": "comments" } } },
      "post": { "summary": "Add a comment", "security": [{"bearer": []}], "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"content":{"type":"string"}}}}}}, "responses": { "201": { "description": "added" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
