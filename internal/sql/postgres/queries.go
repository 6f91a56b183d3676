package postgres

// GetExchangeByName - переопределения адресов и ключей биржи
const GetExchangeByName = `
			SELECT
				id, name, active, base_url, websocket_url, api_key, api_secret, passphrase
			FROM
				exchange
			WHERE
				LOWER(name) = LOWER($1)
				AND deleted = false`

// GetMarginSymbols - маржинальные пары биржи в формате BASE/QUOTE
const GetMarginSymbols = `
			SELECT
				ms.symbol
			FROM
				margin_symbol ms
			INNER JOIN
				exchange e
					ON e.id = ms.exchange_id
			WHERE
				LOWER(e.name) = LOWER($1)
				AND ms.active = true
			ORDER BY
				ms.symbol ASC`
