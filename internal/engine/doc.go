// Package engine запускает внешний движок тестов (Cypress) и разбирает его отчёт.
//
// Включает:
//   - runner.go — запуск команды движка для одного spec-файла
//   - report.go — разбор JSON-отчёта о прогоне
//
// Движок — чёрный ящик: воркер передаёт путь к spec-файлу и конфигурацию
// (видео выключено), а получает одну запись о прогоне: error, reporterStats
// и список скриншотов с локальными путями.
package engine
