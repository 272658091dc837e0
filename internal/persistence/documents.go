package persistence

// GraphQL documents for the wamex_chat table.

const subChatByUUID = `
subscription GetChatByUuid($chat_uuid: uuid!) {
  wamex_chat(where: {chat_uuid: {_eq: $chat_uuid}}) {
    id
    messages
    created_at
    chat_uuid
    updated_at
  }
}`

const queryChatByUUID = `
query GetChatByUuid($chat_uuid: uuid!) {
  wamex_chat(where: {chat_uuid: {_eq: $chat_uuid}}) {
    id
    messages
    created_at
    chat_uuid
    updated_at
  }
}`

const createChat = `
mutation CreateChat($messages: jsonb!, $chat_uuid: uuid!) {
  insert_wamex_chat_one(object: {
    messages: $messages,
    chat_uuid: $chat_uuid,
    created_at: "now()",
    updated_at: "now()",
    user_id: 1
  }) {
    id
    messages
    created_at
    chat_uuid
    updated_at
  }
}`

const updateChatByUUID = `
mutation UpdateChatByUuid($chat_uuid: uuid!, $messages: jsonb!) {
  update_wamex_chat(
    where: { chat_uuid: { _eq: $chat_uuid } },
    _set: { messages: $messages }
  ) {
    returning {
      id
      messages
      created_at
      chat_uuid
      updated_at
    }
  }
}`
