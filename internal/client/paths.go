package client

import (
	"net/url"

	"github.com/adlio/trello"

	"iroha/internal/hierarchy"
)

// Request targets, without credentials. Query values are fully escaped, so a
// name containing '&', '=', '+' or '#' reaches the server intact.

func encode(args trello.Arguments) string {
	return args.ToURLValues().Encode()
}

func boardsPath() string {
	return "/1/members/me/boards?" + encode(trello.Arguments{"fields": "name", "filter": "open"})
}

func listsPath(boardRemoteID string) string {
	return "/1/boards/" + url.PathEscape(boardRemoteID) + "/lists"
}

func cardsPath(listRemoteID string) string {
	return "/1/lists/" + url.PathEscape(listRemoteID) + "/cards?" + encode(trello.Arguments{"fields": "name,desc,id"})
}

func cardDetailPath(cardRemoteID string) string {
	return "/1/cards/" + url.PathEscape(cardRemoteID) + "?" + encode(trello.Arguments{"fields": "name,desc"})
}

func createBoardPath(name string) string {
	return "/1/boards/?" + encode(trello.Arguments{"name": name, "defaultLists": "false"})
}

func createListPath(boardRemoteID, name string) string {
	return "/1/lists?" + encode(trello.Arguments{"name": name, "idBoard": boardRemoteID})
}

func createCardPath(listRemoteID, name string) string {
	return "/1/cards?" + encode(trello.Arguments{"name": name, "idList": listRemoteID})
}

// updatePath targets /1/{boards|lists|cards}/{id} with args as the query.
func updatePath(level hierarchy.Level, remoteID string, args trello.Arguments) string {
	return "/1/" + level.Plural() + "/" + url.PathEscape(remoteID) + "?" + encode(args)
}

func closePath(level hierarchy.Level, remoteID string) string {
	return updatePath(level, remoteID, trello.Arguments{"closed": "true"})
}
