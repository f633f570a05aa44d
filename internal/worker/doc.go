// Package worker обрабатывает запросы на извлечение из очереди crawl_requests.
//
// # Обзор
//
// Worker — stateless компонент: получает CrawlRequest из RabbitMQ,
// вызывает внешний Extractor и публикует ExtractedRecord в raw_recipe_data.
// Состояние retry (счётчик попыток, время первой ошибки, последняя ошибка)
// едет в заголовках сообщения, поэтому любой экземпляр может продолжить
// обработку. Масштабирование — запуском нескольких процессов.
//
// Внутри процесса доставки обрабатываются строго по одной (prefetch 1):
// upstream ограничивает частоту запросов глобально, параллельность
// только ускорила бы rate limit.
//
// # Ключевые компоненты
//
//	w := worker.New(worker.Config{
//	    Conn:        mqConn,
//	    Publisher:   publisher,
//	    Redeliverer: mq.NewDelayedRedeliverer(publisher),
//	    Extractor:   ex,
//	    Logger:      logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// Redeliverer подменяется без изменения логики: DelayedRedeliverer
// (delayed_exchange) или RequeueRedeliverer (деградированный режим
// с паузой worker'а).
//
// # Обработка доставки
//
//  1. Decode — невалидный конверт или ссылка → dead letter сразу
//  2. Extract — вызов extractor'а с таймаутом
//  3. Успех → публикация результата → ack
//  4. Ошибка → retry.Policy.Decide:
//     повтор → новая доставка с обновлёнными заголовками → ack;
//     dead letter → crawl_requests_failed → ack
//
// Каждая доставка подтверждается ровно один раз и только после
// побочного эффекта. Если публикация результата или повтора не удалась,
// сообщение уходит в dead letter; если не удалась и она, ошибка
// логируется и попадает в crawl_publish_failures_total.
//
// # Остановка
//
// Stop прекращает приём новых доставок. Текущая доставка доводится
// до терминального перехода и ack; пауза режима requeue прерывается.
package worker
