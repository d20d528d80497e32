// Package api — операционный HTTP API воркера.
//
// Маршруты:
//   - GET /healthz          — процесс жив
//   - GET /readyz           — 503, пока хранилище не подключено
//   - GET /metrics          — метрики Prometheus
//   - GET /api/v1/jobs/{id} — job с тест-кейсом и сборкой (только чтение)
package api
