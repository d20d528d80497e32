// Package repo — хранилище тестовых job'ов.
//
// Две реализации с одинаковым контрактом:
//   - MongoStore — документное хранилище (коллекции testobjects,
//     test-cases, appcompilationmodels), job читается aggregation-пайплайном
//     с обязательными $lookup + $unwind
//   - PgStore — Postgres (таблицы test_objects, test_cases, app_compilations),
//     те же связи через INNER JOIN
//
// Обновления статуса защищены условием на текущий статус, поэтому
// статус job'а никогда не откатывается (pending → in-progress → success/failed).
package repo
