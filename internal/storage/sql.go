package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      run_id,
                      start_time,
                      source,
                      mjd,
                      num_chan,
                      info)
VALUES (?, CURRENT_TIMESTAMP, ?, ?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    run_id,
    start_time,
    source,
    mjd,
    num_chan,
    info
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    run_id,
    start_time,
    source,
    mjd,
    num_chan,
    info
FROM sessions
ORDER BY start_time, id`

	insertFileSQL = `
INSERT INTO files (session_id,
                   file_index,
                   path,
                   data_len,
                   num_points,
                   pad_points,
                   data_start,
                   start_block,
                   end_block,
                   mjd)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectFilesSQL = `
SELECT
    file_index,
    path,
    data_len,
    num_points,
    pad_points,
    data_start,
    start_block,
    end_block,
    mjd
FROM files
WHERE
    session_id = ?
ORDER BY file_index`

	insertSpectrumSQL = `
INSERT INTO spectra (session_id,
                     block,
                     elapsed,
                     timestamp,
                     padding,
                     frequency,
                     width,
                     power,
                     num_points)
VALUES `

	selectFilterValuesSQL = `
SELECT
    MIN(frequency),
    MAX(frequency),
    MIN(block),
    MAX(block)
FROM spectra
WHERE
    session_id = ?`

	selectSpectraSQL = `
SELECT
    block,
    elapsed,
    timestamp,
    padding,
    frequency,
    width,
    power,
    num_points
FROM spectra
WHERE
    session_id = ?
    AND block BETWEEN ? AND ?
    AND frequency BETWEEN ? AND ?
ORDER BY block, frequency`

	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_files_session ON files (session_id, file_index);
CREATE INDEX IF NOT EXISTS idx_spectra_session_block ON spectra (session_id, block, frequency);`
)

//go:embed schema.sql
var initSchemaSQL string
