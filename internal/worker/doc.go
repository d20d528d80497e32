// Package worker обрабатывает запросы на запуск Cypress-тестов.
//
// # Обзор
//
// Worker — долгоживущий процесс, который по одному забирает сообщения
// {"test_id": "..."} из очереди, прогоняет тест и записывает результат.
// Масштабирование — несколько независимых процессов на одной очереди;
// от двойной обработки защищает только lease очереди.
//
// # Worker
//
//	w := worker.New(worker.Config{
//	    Store:     store,
//	    Queue:     queue,
//	    Cache:     specCache,
//	    Runner:    runner,
//	    Publisher: publisher,
//	    Logger:    logger,
//	})
//
//	if err := w.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Run сначала подключается к хранилищу (retry каждые ConnectRetryDelay,
// без ограничения числа попыток), затем опрашивает очередь. Пустой опрос —
// пауза IdleInterval; после обработанного сообщения опрос сразу повторяется.
//
// # Executor
//
// Одно сообщение проходит состояния:
//
//	received → resolved → preparing → running → finalizing → done
//	                                                      ↘ aborted
//
//  1. received: разбор test_id; некорректное тело → aborted
//  2. resolved: FetchFull; нет job или ошибка запроса → aborted;
//     уже завершённый job не перезапускается
//  3. preparing: best-effort статус in-progress, загрузка spec-файла в кэш;
//     файл недоступен → aborted
//  4. running: запуск движка (без записи видео)
//  5. finalizing: ошибка движка → failed с текстом ошибки; иначе скриншоты
//     уходят в фоновую загрузку, статус success если passes == tests
//  6. done: SaveResult (best-effort)
//
// Сообщение удаляется на каждом пути. Ошибки шагов логируются и не
// роняют процесс.
package worker
