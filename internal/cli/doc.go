// Package cli содержит cobra-команды cypress-worker для операторов.
//
// ## Client
//
// HTTP-клиент операционного API воркера (/readyz, /api/v1/jobs/{id}).
// Работает через HTTP и не импортирует внутренние пакеты.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
//
// ## Commands
//
//   - job show JOB_ID — статус и результат job
//   - enqueue TEST_ID... — поставить job'ы в очередь
//
// Фабрики команд принимают замыкания (clientFn, outputFn, senderFn), чтобы
// создавать зависимости после парсинга PersistentFlags.
package cli
