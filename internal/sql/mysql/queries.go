package mysql

// GetExchangeByName - переопределения адресов и ключей биржи
const GetExchangeByName = `
			SELECT
				ID, NAME, ACTIVE, BASE_URL, WEBSOCKET_URL, API_KEY, API_SECRET, PASSPHRASE
			FROM
				EXCHANGE
			WHERE
				LOWER(NAME) = LOWER(?)
				AND DELETED = 0`

// GetMarginSymbols - маржинальные пары биржи в формате BASE/QUOTE
const GetMarginSymbols = `
			SELECT
				ms.SYMBOL
			FROM
				MARGIN_SYMBOL ms
			INNER JOIN
				EXCHANGE e
					ON e.ID = ms.EXCHANGE_ID
			WHERE
				LOWER(e.NAME) = LOWER(?)
				AND ms.ACTIVE = 1
			ORDER BY
				ms.SYMBOL ASC`
