// Package docs регистрирует описание API для swagger UI на /docs/*.
// Обновляется командой: swag init -g cmd/learnhub/main.go -o internal/docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/register": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Регистрация преподавателя",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/register.Request"}}],
                "responses": {
                    "201": {"description": "Учетная запись создана", "schema": {"$ref": "#/definitions/response.Response"}},
                    "409": {"description": "Email занят", "schema": {"$ref": "#/definitions/response.ErrorResponse"}},
                    "422": {"description": "Ошибка валидации", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Вход",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/login.Request"}}],
                "responses": {
                    "200": {"description": "JWT-токен", "schema": {"$ref": "#/definitions/response.Response"}},
                    "401": {"description": "Неверные учетные данные", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/profile": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Account"],
                "summary": "Профиль и состояние подписки",
                "responses": {
                    "200": {"description": "Профиль", "schema": {"$ref": "#/definitions/response.Response"}},
                    "401": {"description": "Не авторизован", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/lessons": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Lessons"],
                "summary": "Список уроков",
                "parameters": [{"type": "boolean", "in": "query", "name": "active"}],
                "responses": {
                    "200": {"description": "Уроки", "schema": {"$ref": "#/definitions/response.Response"}},
                    "402": {"description": "Нужна подписка", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Lessons"],
                "summary": "Создать урок",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/models.DummyLesson"}}],
                "responses": {
                    "201": {"description": "Созданный урок", "schema": {"$ref": "#/definitions/response.Response"}},
                    "402": {"description": "Нужна подписка", "schema": {"$ref": "#/definitions/response.Response"}},
                    "422": {"description": "Ошибка валидации", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/lessons/{id}": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Lessons"],
                "summary": "Удалить урок",
                "parameters": [{"type": "integer", "in": "path", "name": "id", "required": true}],
                "responses": {
                    "200": {"description": "Урок удален", "schema": {"$ref": "#/definitions/response.Response"}},
                    "404": {"description": "Урок не найден", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/rewards": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Rewards"],
                "summary": "Список наград",
                "responses": {
                    "200": {"description": "Награды", "schema": {"$ref": "#/definitions/response.Response"}},
                    "402": {"description": "Нужна подписка", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Rewards"],
                "summary": "Создать награду",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/models.DummyReward"}}],
                "responses": {
                    "201": {"description": "Созданная награда", "schema": {"$ref": "#/definitions/response.Response"}},
                    "422": {"description": "Ошибка валидации", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/rewards/{id}": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Rewards"],
                "summary": "Удалить награду",
                "parameters": [{"type": "integer", "in": "path", "name": "id", "required": true}],
                "responses": {
                    "200": {"description": "Награда удалена", "schema": {"$ref": "#/definitions/response.Response"}},
                    "404": {"description": "Награда не найдена", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/admin/accounts/{uid}/extend": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Продлить подписку",
                "parameters": [
                    {"type": "string", "in": "path", "name": "uid", "required": true},
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/extend.Request"}}
                ],
                "responses": {
                    "200": {"description": "Новая дата окончания", "schema": {"$ref": "#/definitions/response.Response"}},
                    "400": {"description": "Некорректный запрос", "schema": {"$ref": "#/definitions/response.ErrorResponse"}},
                    "403": {"description": "Недостаточно прав", "schema": {"$ref": "#/definitions/response.ErrorResponse"}},
                    "404": {"description": "Учетная запись не найдена", "schema": {"$ref": "#/definitions/response.ErrorResponse"}},
                    "409": {"description": "Конфликт", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "response.Response": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "error": {"type": "string"},
                "data": {}
            }
        },
        "response.ErrorResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "Error"},
                "error": {"type": "string", "example": "invalid request body"}
            }
        },
        "register.Request": {
            "type": "object",
            "required": ["email", "name", "password"],
            "properties": {
                "email": {"type": "string"},
                "name": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "login.Request": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "extend.Request": {
            "type": "object",
            "required": ["days"],
            "properties": {
                "days": {"type": "integer", "minimum": 1, "maximum": 36500}
            }
        },
        "models.DummyLesson": {
            "type": "object",
            "required": ["title"],
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "video_url": {"type": "string"},
                "is_active": {"type": "boolean"}
            }
        },
        "models.DummyReward": {
            "type": "object",
            "required": ["title"],
            "properties": {
                "title": {"type": "string"},
                "cost": {"type": "integer", "minimum": 0}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and JWT token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo содержит экспортируемые метаданные описания API.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "LearnHub API",
	Description:      "API платформы онлайн-уроков с пробным периодом и платной подпиской",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
