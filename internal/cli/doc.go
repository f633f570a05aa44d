// Package cli реализует операторскую утилиту crawlctl.
//
// # Обзор
//
// crawlctl работает напрямую с RabbitMQ и архивом в PostgreSQL:
// отправляет запросы вручную, читает результаты и разбирает
// crawl_requests_failed.
//
// # Ключевые компоненты
//
// ## Client
//
// Подключение к RabbitMQ с publisher confirms. Команды зависят
// от интерфейса Broker, а не от Client:
//
//	client, err := cli.Dial(cfg.RabbitMQURL, logger)
//	defer client.Close()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: crawlctl dlq list --json | jq .
//
// ## Commands
//
//   - send URL — запрос в crawl_requests (проверяется до публикации)
//   - results — вычитать raw_recipe_data
//   - dlq: archive, list, replay
//
// Фабричные функции (NewSendCmd и т.д.) принимают brokerFn, archiveFn
// и outputFn — замыкания для ленивого подключения после парсинга
// PersistentFlags. Команда, которой не нужна база, к ней не подключается.
//
// Сообщения из очереди забираются через basic.get без auto-ack и
// подтверждаются только после побочного эффекта (вывод, запись в архив,
// повторная публикация).
package cli
