// Package docs holds the Swagger specification for the Adaptive
// Learning Engine API, in the shape `swag init` produces. It is written
// by hand here and covers only the minimal surface httpSwagger needs to
// serve /swagger/.
package docs

import "github.com/swaggo/swag"

const doc = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{.Description}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "summary": "Liveness check",
                "responses": {"200": {"description": "ok"}}
            }
        },
        "/sessions": {
            "post": {
                "summary": "Create a quiz session",
                "responses": {"201": {"description": "created"}}
            }
        },
        "/sessions/{sessionID}/answers": {
            "post": {
                "summary": "Submit an answer to the current question",
                "responses": {"200": {"description": "ok"}}
            }
        },
        "/sessions/{sessionID}/complete": {
            "post": {
                "summary": "Complete a quiz session",
                "responses": {"200": {"description": "ok"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger metadata, populated at init the
// way `swag init` populates it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Adaptive Learning Engine API",
	Description:      "Spaced-repetition scheduling, mastery-weighted quiz selection, and adaptive tutoring advice.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  doc,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
